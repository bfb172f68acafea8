package pipeline

import "context"

// Request asks the worker to process one image.
type Request struct {
	ImagePath   string
	Title       string
	Description string
}

// Worker runs the pipeline off the caller's goroutine so a front-end (CLI
// watcher, or any future UI) stays responsive. One worker, one image at a
// time; batching is deliberately not supported.
type Worker struct {
	Pipeline *Pipeline
	Requests chan Request
	Results  chan Result
}

// NewWorker creates a worker with buffered channels.
func NewWorker(p *Pipeline, buf int) *Worker {
	if buf < 1 {
		buf = 1
	}
	return &Worker{
		Pipeline: p,
		Requests: make(chan Request, buf),
		Results:  make(chan Result, buf),
	}
}

// Run consumes requests until the context ends or Requests is closed, then
// closes Results.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.Results)
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.Requests:
			if !ok {
				return
			}
			res := w.Pipeline.Process(ctx, req.ImagePath, req.Title, req.Description)
			select {
			case w.Results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}
