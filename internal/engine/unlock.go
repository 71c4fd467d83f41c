package engine

import (
	"questboard/internal/domain"
)

// EvaluateUnlocks recomputes unlock eligibility for every quest in the org
// snapshot and returns copies of the quests that move from locked to unlocked.
// Quests already past locked are never touched, so repeated passes are
// idempotent. Conditions referencing deleted quests/tasks are unsatisfied,
// never an error.
func EvaluateUnlocks(quests []domain.Quest, tasks []domain.Task) []domain.Quest {
	questsByID := make(map[string]domain.Quest, len(quests))
	for _, q := range quests {
		questsByID[q.ID] = q
	}
	tasksByID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		tasksByID[t.ID] = t
	}

	var unlocked []domain.Quest
	for _, q := range quests {
		if q.State != domain.QuestLocked {
			continue
		}
		if !conditionsSatisfied(q.UnlockConditions, questsByID, tasksByID) {
			continue
		}
		q.State = domain.QuestUnlocked
		unlocked = append(unlocked, q)
	}
	return unlocked
}

// A quest with zero conditions unlocks immediately.
func conditionsSatisfied(conds []domain.UnlockCondition, quests map[string]domain.Quest, tasks map[string]domain.Task) bool {
	for _, c := range conds {
		if !conditionSatisfied(c, quests, tasks) {
			return false
		}
	}
	return true
}

func conditionSatisfied(c domain.UnlockCondition, quests map[string]domain.Quest, tasks map[string]domain.Task) bool {
	switch c.Kind {
	case domain.CondTaskCompleted:
		t, ok := tasks[c.TaskID]
		return ok && t.Status == domain.TaskDone
	case domain.CondQuestCompleted:
		q, ok := quests[c.QuestID]
		return ok && q.State == domain.QuestCompleted
	case domain.CondAllTasksCompleted:
		for _, id := range c.TaskIDs {
			t, ok := tasks[id]
			if !ok || t.Status != domain.TaskDone {
				return false
			}
		}
		return true
	default:
		// unknown condition kinds never satisfy
		return false
	}
}
