package notify

import (
	"fmt"
	"strings"

	"questboard/internal/domain"
)

// DeckDigest renders the per-member daily deck message.
func DeckDigest(member domain.Member, deck domain.MemberQuestDeck) string {
	name := member.Name
	if name == "" {
		name = member.Email
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quest deck for %s - %s\n", name, deck.Date)
	if len(deck.Entries) == 0 {
		b.WriteString("No actionable work today.")
		return b.String()
	}
	for _, entry := range deck.Entries {
		fmt.Fprintf(&b, "• quest %s: %d task(s), ~%d min\n", entry.QuestID, len(entry.TaskIDs), entry.TotalEstimatedMinutes)
	}
	fmt.Fprintf(&b, "Total: %d min of %d min capacity", deck.TotalMinutes, member.DailyCapacityMinutes)
	return b.String()
}

// RunDigest renders the end-of-run org summary.
func RunDigest(orgName string, stats domain.RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Questmaster run for %s: %d quest(s) unlocked, %d task(s) assigned, %d deck(s) generated",
		orgName, stats.UnlockedQuests, stats.TasksAssigned, stats.DecksGenerated)
	if stats.StaleTasks > 0 || stats.BlockedTasks > 0 {
		fmt.Fprintf(&b, "; attention: %d stale, %d blocked task(s)", stats.StaleTasks, stats.BlockedTasks)
	}
	if len(stats.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings:\n")
		for _, w := range stats.Warnings {
			fmt.Fprintf(&b, "• %s\n", w)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
