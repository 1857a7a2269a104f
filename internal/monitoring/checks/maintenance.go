package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/lockgate/internal/app/maintenance"
	"github.com/charlesng35/lockgate/internal/monitoring"
)

const defaultMaintenanceMaxAge = 48 * time.Hour

// JobReporter exposes the outcome of scheduled housekeeping jobs.
type JobReporter interface {
	Status() []maintenance.JobStatus
}

// Maintenance reports down when a job's latest run failed and degraded when a
// job has not succeeded within maxAge. Jobs that never ran are pending and
// count as up.
func Maintenance(jobs JobReporter, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if jobs == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs.Status() {
			switch {
			case job.Runs == 0:
				notes = append(notes, job.Name+": pending first run")
			case job.LastError != "":
				status = monitoring.Worst(status, monitoring.StatusDown)
				notes = append(notes, job.Name+": "+job.LastError)
			case now().Sub(job.LastSuccessAt) > maxAge:
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				notes = append(notes, job.Name+": stale since "+job.LastSuccessAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	})
}
