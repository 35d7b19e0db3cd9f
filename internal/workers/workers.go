// Package workers runs the application's background workers in a unified
// way. A worker is anything with a blocking or self-spawning Run method;
// the aggregate starts them in registration order.
package workers

// Worker is implemented by any background worker. Run either blocks for
// the duration of the work or spawns goroutines internally.
type Worker interface {
	Run()
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func()

// Run calls f.
func (f WorkerFunc) Run() { f() }

// Workers starts a fixed set of workers in order.
type Workers struct {
	workers []Worker
}

// NewWorkers returns an aggregate over the given workers.
func NewWorkers(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

// Run starts every worker in registration order.
func (w *Workers) Run() {
	for _, worker := range w.workers {
		worker.Run()
	}
}
