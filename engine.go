package cadence

import "context"

// Engine wires the Manager, Advancer and Scheduler over one store with shared options.
type Engine struct {
	manager   *Manager
	advancer  *Advancer
	scheduler *Scheduler
}

// New constructs an Engine.
func New(store Store, opts ...Option) *Engine {
	advancer := NewAdvancer(store, opts...)
	scheduler := NewScheduler(store, advancer, opts...)

	return &Engine{
		manager:   NewManager(store, scheduler, opts...),
		advancer:  advancer,
		scheduler: scheduler,
	}
}

// Enroll enrolls one lead, see Manager.Enroll.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	return e.manager.Enroll(ctx, req)
}

// EnrollBulk enrolls many leads, see Manager.EnrollBulk.
func (e *Engine) EnrollBulk(ctx context.Context, req BulkEnrollRequest) (BulkResult, error) {
	return e.manager.EnrollBulk(ctx, req)
}

// Advance advances one enrollment, see Advancer.Advance.
func (e *Engine) Advance(ctx context.Context, enrollment Enrollment) (StepResult, error) {
	return e.advancer.Advance(ctx, enrollment)
}

// RunBatch processes due enrollments, see Scheduler.RunBatch.
func (e *Engine) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	return e.scheduler.RunBatch(ctx, req)
}

// Run polls until ctx is canceled, see Scheduler.Run.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// Close waits for in-flight immediate starts.
func (e *Engine) Close(ctx context.Context) error {
	return e.manager.Wait(ctx)
}
