package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API layer to manage background
// synchronization work.
// Example usage:
//
//	scheduler := NewScheduler(registry)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshAccountTask(coordinator))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
