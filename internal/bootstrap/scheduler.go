package bootstrap

import "mailmirror/core/service/scheduler"

// NewScheduler returns the periodic-tick service (§4.8) for the
// scheduler process mode; the caller drives it with Scheduler.Run.
func NewScheduler(d *Deps) *scheduler.Scheduler {
	return d.Scheduler
}
