package engine

import (
	"questboard/internal/domain"
)

// Assignment pairs an unassigned task with its chosen member.
type Assignment struct {
	TaskID   string
	MemberID string
}

const (
	scoreStrength   = 2
	scoreCompetency = 1
)

// AssignTasks assigns every unassigned, not-done task to the best-fit member
// with remaining daily capacity. Tasks already assigned are left alone
// (assignment is sticky), so a second pass with no state change is a no-op.
// The pass is greedy and single-sweep over tasks in their given order, which
// must be the stable (created_at,id) order for determinism. Members without a
// working-genius profile are excluded from candidacy. When no member has
// capacity left the task stays unassigned; that is expected, not an error.
func AssignTasks(tasks []domain.Task, members []domain.Member) []Assignment {
	committed := make(map[string]int, len(members))
	for _, t := range tasks {
		if t.AssignedMemberID != nil && t.Status != domain.TaskDone {
			committed[*t.AssignedMemberID] += t.EstimateMinutes
		}
	}

	var candidates []domain.Member
	for _, m := range members {
		if m.Profile != nil {
			candidates = append(candidates, m)
		}
	}

	var out []Assignment
	for _, t := range tasks {
		if t.AssignedMemberID != nil || t.Status == domain.TaskDone {
			continue
		}
		bestIdx := -1
		bestScore := -1
		for i, m := range candidates {
			if m.DailyCapacityMinutes-committed[m.ID] < t.EstimateMinutes {
				continue
			}
			score := phaseScore(m.Profile, t.Phase)
			if bestIdx == -1 || better(score, committed[m.ID], m.ID, bestScore, committed[candidates[bestIdx].ID], candidates[bestIdx].ID) {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			continue
		}
		chosen := candidates[bestIdx]
		committed[chosen.ID] += t.EstimateMinutes
		out = append(out, Assignment{TaskID: t.ID, MemberID: chosen.ID})
	}
	return out
}

// better orders candidates by score desc, then committed minutes asc
// (load balancing), then member id for a stable final tie-break.
func better(score, load int, id string, curScore, curLoad int, curID string) bool {
	if score != curScore {
		return score > curScore
	}
	if load != curLoad {
		return load < curLoad
	}
	return id < curID
}

func phaseScore(p *domain.GeniusProfile, phase domain.GeniusPhase) int {
	if p == nil || phase == "" {
		return 0
	}
	for _, s := range p.Strengths {
		if s == phase {
			return scoreStrength
		}
	}
	for _, s := range p.Competencies {
		if s == phase {
			return scoreCompetency
		}
	}
	return 0
}
