package coordinator

import "github.com/dshills/paramtree/internal/param/value"

// Default targets for system-wide refresh tasks.
const (
	TargetLighting    = "lighting"
	TargetDisplay     = "display"
	TargetPerformance = "performance"
)

// SubmitParameterChange queues a parameter-change task for path. Only the
// Batched strategy makes the task batchable; the strategy is carried to the
// handler registered for TypeParameterChange.
func (c *Coordinator) SubmitParameterChange(path string, from, to value.Value, s Strategy) (string, error) {
	return c.Submit(Task{
		Type:      TypeParameterChange,
		Target:    path,
		OldValue:  from,
		NewValue:  to,
		Priority:  PriorityParameterChange,
		Batchable: s == Batched,
		Strategy:  s,
	})
}

// ScheduleGeometryRebuild queues a geometry rebuild of target. Rebuilds are
// never batched.
func (c *Coordinator) ScheduleGeometryRebuild(target string) (string, error) {
	return c.Submit(Task{
		Type:     TypeGeometryRebuild,
		Target:   target,
		Priority: PriorityGeometryRebuild,
	})
}

// ScheduleRenderingUpdate queues a rendering refresh of target.
func (c *Coordinator) ScheduleRenderingUpdate(target string) (string, error) {
	return c.Submit(Task{
		Type:      TypeRenderingUpdate,
		Target:    target,
		Priority:  PriorityRenderingUpdate,
		Batchable: true,
		Strategy:  Batched,
	})
}

// ScheduleLightingUpdate queues a lighting refresh.
func (c *Coordinator) ScheduleLightingUpdate() (string, error) {
	return c.Submit(Task{
		Type:      TypeLightingUpdate,
		Target:    TargetLighting,
		Priority:  PriorityLightingUpdate,
		Batchable: true,
		Strategy:  Batched,
	})
}

// ScheduleDisplayUpdate queues a display refresh.
func (c *Coordinator) ScheduleDisplayUpdate() (string, error) {
	return c.Submit(Task{
		Type:      TypeDisplayUpdate,
		Target:    TargetDisplay,
		Priority:  PriorityDisplayUpdate,
		Batchable: true,
		Strategy:  Batched,
	})
}

// SchedulePerformanceUpdate queues a performance settings refresh.
func (c *Coordinator) SchedulePerformanceUpdate() (string, error) {
	return c.Submit(Task{
		Type:      TypePerformanceUpdate,
		Target:    TargetPerformance,
		Priority:  PriorityPerformanceUpdate,
		Batchable: true,
		Strategy:  Batched,
	})
}
