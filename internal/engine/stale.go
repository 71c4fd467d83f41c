package engine

import (
	"time"

	"questboard/internal/domain"
)

// StaleReport lists tasks flagged by the detector. Stale and blocked are
// independent checks; the same task can appear in both.
type StaleReport struct {
	Stale   []domain.Task
	Blocked []domain.Task
}

// DetectStaleAndBlocked scans tasks read-only. Stale means a non-terminal
// status and an updated_at strictly older than the threshold; a task exactly
// at the boundary is not yet stale. Blocked means non-empty blockers on a
// not-done task, regardless of age or what the status field claims.
func DetectStaleAndBlocked(tasks []domain.Task, now time.Time, staleAfter time.Duration) StaleReport {
	var rep StaleReport
	for _, t := range tasks {
		if len(t.Blockers) > 0 && t.Status != domain.TaskDone {
			rep.Blocked = append(rep.Blocked, t)
		}
		if t.Status == domain.TaskDone || t.Status == domain.TaskBlocked {
			continue
		}
		updated, err := time.Parse(domain.TimeFormat, t.UpdatedAt)
		if err != nil {
			continue
		}
		if now.Sub(updated) > staleAfter {
			rep.Stale = append(rep.Stale, t)
		}
	}
	return rep
}
