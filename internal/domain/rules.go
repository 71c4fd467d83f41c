package domain

import "fmt"

var questStateRank = map[QuestState]int{
	QuestLocked:     0,
	QuestUnlocked:   1,
	QuestInProgress: 2,
	QuestCompleted:  3,
}

// ValidQuestState reports whether s is a known quest state.
func ValidQuestState(s QuestState) bool {
	_, ok := questStateRank[s]
	return ok
}

// CanAdvanceQuest enforces the monotonic quest lifecycle: states only move
// forward, never back.
func CanAdvanceQuest(from, to QuestState) error {
	fr, ok := questStateRank[from]
	if !ok {
		return fmt.Errorf("invalid quest state %q", from)
	}
	tr, ok := questStateRank[to]
	if !ok {
		return fmt.Errorf("invalid quest state %q", to)
	}
	if tr <= fr {
		return fmt.Errorf("quest state cannot move from %s to %s", from, to)
	}
	return nil
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskBlocked, TaskDone:
		return true
	}
	return false
}

// ValidPhase reports whether p is one of the six Working Genius phases.
// An empty phase is allowed; it simply scores as no affinity.
func ValidPhase(p GeniusPhase) bool {
	switch p {
	case "", PhaseWonder, PhaseInvention, PhaseDiscernment, PhaseGalvanizing, PhaseEnablement, PhaseTenacity:
		return true
	}
	return false
}

// ValidateProfile checks that a profile partitions the six phases into three
// disjoint pairs covering all of them.
func ValidateProfile(p *GeniusProfile) error {
	if p == nil {
		return nil
	}
	seen := map[GeniusPhase]bool{}
	groups := []struct {
		name   string
		phases []GeniusPhase
	}{
		{"strengths", p.Strengths},
		{"competencies", p.Competencies},
		{"frustrations", p.Frustrations},
	}
	for _, g := range groups {
		if len(g.phases) != 2 {
			return fmt.Errorf("profile %s must list exactly 2 phases, got %d", g.name, len(g.phases))
		}
		for _, ph := range g.phases {
			if !ValidPhase(ph) || ph == "" {
				return fmt.Errorf("profile %s contains invalid phase %q", g.name, ph)
			}
			if seen[ph] {
				return fmt.Errorf("profile lists phase %q more than once", ph)
			}
			seen[ph] = true
		}
	}
	if len(seen) != 6 {
		return fmt.Errorf("profile must cover all six phases, got %d", len(seen))
	}
	return nil
}
