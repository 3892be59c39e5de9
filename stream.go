package csvkit

import (
	"context"
)

// Row is one element of a Stream: a Record or the error that ended the
// stream.
type Row struct {
	Record Record
	Err    error
}

// Stream reads path in a separate goroutine and delivers its Records on the
// returned channel, which holds up to buf rows. The channel is closed when
// the file is exhausted, after a Row carrying an error, or when ctx is
// cancelled. A slow consumer blocks the reading goroutine.
//
// Consumers that stop early must cancel ctx so the goroutine can exit.
func Stream(ctx context.Context, path string, opts Options, buf int) <-chan Row {
	if buf < 0 {
		buf = 0
	}
	out := make(chan Row, buf)

	go func() {
		defer close(out)
		for rec, err := range Records(ctx, path, opts) {
			select {
			case out <- Row{Record: rec, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
