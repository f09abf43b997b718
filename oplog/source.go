package oplog

import (
	"context"
)

// Source is the contract the observer needs from the resumable ordered log
// stream. The driver owns the stream; the observer only positions in it and
// pulls from it.
type Source interface {
	// Position opens a cursor whose first yielded entry is the first with
	// timestamp strictly greater than the checkpoint. A zero checkpoint
	// positions at the start of the retained log. When the log no longer
	// retains the requested position the call fails with
	// errors.ErrUnresumableCheckpoint: fatal, never retried internally.
	Position(ctx context.Context, checkpoint Checkpoint) (Cursor, error)
}

// Cursor is a tailable read handle over the append-only log.
type Cursor interface {
	// TryNext is a non-blocking peek. (nil, nil) means the stream is
	// momentarily exhausted, which is distinct from an entry with an
	// unrecognized kind. A stream failure surfaces as
	// errors.ErrStreamUnavailable.
	TryNext(ctx context.Context) (*Entry, error)

	Close(ctx context.Context) error
}
