package engine

import (
	"sort"
	"time"

	"questboard/internal/domain"
)

// BuildDeck selects today's work for one member: their assigned, not-done
// tasks under unlocked or in-progress quests, grouped by quest, packed
// greedily in insertion order until daily capacity is reached. A task that
// would exceed the remaining capacity is skipped and scanning continues.
// This is deliberately NOT optimal bin packing; the insertion-order greedy
// outcome is part of the contract and callers depend on it.
//
// The second return value reports overallocation: total eligible minutes
// exceed the member's capacity. That is a warning for the run summary, not
// an error.
//
// Output is deterministic for a given snapshot; decks are keyed by
// member+date so regenerating the same day overwrites.
func BuildDeck(member domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool) {
	deck := domain.MemberQuestDeck{
		ID:          domain.DeckID(member.ID, date),
		OrgID:       member.OrgID,
		MemberID:    member.ID,
		Date:        date,
		GeneratedAt: generatedAt.UTC().Format(domain.TimeFormat),
	}

	active := make(map[string]bool, len(quests))
	var questOrder []string
	for _, q := range quests {
		if q.State == domain.QuestUnlocked || q.State == domain.QuestInProgress {
			active[q.ID] = true
			questOrder = append(questOrder, q.ID)
		}
	}

	byQuest := make(map[string][]domain.Task)
	totalEligible := 0
	for _, t := range tasks {
		if t.AssignedMemberID == nil || *t.AssignedMemberID != member.ID {
			continue
		}
		if t.Status == domain.TaskDone {
			continue
		}
		if !active[t.QuestID] {
			continue
		}
		byQuest[t.QuestID] = append(byQuest[t.QuestID], t)
		totalEligible += t.EstimateMinutes
	}

	remaining := member.DailyCapacityMinutes
	for _, qid := range questOrder {
		group := byQuest[qid]
		if len(group) == 0 {
			continue
		}
		// Declared priority wins; ties keep creation order (stable sort over
		// the already created_at-ordered snapshot).
		sort.SliceStable(group, func(i, j int) bool {
			pi, pj := group[i].Priority, group[j].Priority
			switch {
			case pi != nil && pj != nil:
				return *pi < *pj
			case pi != nil:
				return true
			default:
				return false
			}
		})
		entry := domain.DeckEntry{QuestID: qid}
		for _, t := range group {
			if t.EstimateMinutes > remaining {
				continue
			}
			entry.TaskIDs = append(entry.TaskIDs, t.ID)
			entry.TotalEstimatedMinutes += t.EstimateMinutes
			remaining -= t.EstimateMinutes
		}
		if len(entry.TaskIDs) > 0 {
			deck.Entries = append(deck.Entries, entry)
			deck.TotalMinutes += entry.TotalEstimatedMinutes
		}
	}

	return deck, totalEligible > member.DailyCapacityMinutes
}
