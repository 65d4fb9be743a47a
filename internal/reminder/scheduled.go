package reminder

import "context"

// DefaultSchedule runs the sweep at 9am server time, early enough that
// reminders land during the client's working day.
const DefaultSchedule = "0 9 * * *"

// ScheduledRun adapts the engine to the job manager's scheduled task
// shape.
type ScheduledRun struct {
	engine   *Engine
	schedule string
}

func NewScheduledRun(engine *Engine, schedule string) *ScheduledRun {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &ScheduledRun{engine: engine, schedule: schedule}
}

func (s *ScheduledRun) Name() string { return "reminder.escalation_run" }

func (s *ScheduledRun) Schedule() string { return s.schedule }

func (s *ScheduledRun) Handle(ctx context.Context) error {
	return s.engine.Run(ctx)
}
