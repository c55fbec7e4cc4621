package queue

// Storage combines all repository interfaces required by queue components.
// A single implementation of this interface can back an Enqueuer, Worker,
// and Scheduler at once, which keeps service wiring down to one dependency.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	SchedulerRepository
}
