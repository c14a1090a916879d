package diff

import "context"

// DiffAsync runs Diff on its own goroutine and delivers the result on
// the returned channel. The channel is buffered, so an abandoned result
// never blocks the worker.
//
// Timeout-and-fall-back-to-synchronous is deliberately a caller policy:
// select on the returned channel and a timer, and call Diff directly if
// the deadline passes. The engine's mutex keeps the two paths safe to
// race; whichever finishes second simply re-applies the same inputs.
func (e *Engine) DiffAsync(ctx context.Context, in Input) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		if ctx.Err() != nil {
			close(out)
			return
		}
		out <- e.Diff(in)
		close(out)
	}()
	return out
}
