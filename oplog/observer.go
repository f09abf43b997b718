package oplog

import (
	"context"

	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/log"
)

// ErrStopObservation is the distinguished stop signal. It carries no
// payload, is raised only by a caller-supplied IdleFunc, and is always
// propagated by Observe, never caught internally. Callers tell expected
// termination apart from failure with errors.Is.
var ErrStopObservation = errors.New("stop observation")

// IdleFunc runs whenever the stream reports no currently-available entry.
// Returning nil resumes pulling; a caller wanting infinite tailing sleeps
// or backs off inside it. Returning ErrStopObservation stops observation
// after draining the currently-available entries. Any other error stops
// observation as a failure.
type IdleFunc func() error

// Observer tails one oplog stream and dispatches each entry on the watched
// namespace to the matching handler method, in timestamp order, one at a
// time. Its only mutable state is the checkpoint of the last successfully
// dispatched entry.
type Observer struct {
	cursor     Cursor
	handler    OperationHandler
	namespace  string
	checkpoint Checkpoint
	onIdle     IdleFunc
}

// NewObserver opens a cursor positioned so that the first entry it can
// yield is the first with timestamp strictly greater than start. All
// parameters are required; a caller without a stored checkpoint makes that
// explicit by reading the stream tail first (TailSource.Newest).
func NewObserver(ctx context.Context, source Source, handler OperationHandler, namespace string, start Checkpoint, onIdle IdleFunc) (*Observer, error) {
	if source == nil {
		return nil, errors.New("oplog source is nil")
	}
	if handler == nil {
		return nil, errors.New("operation handler is nil")
	}
	if namespace == "" {
		return nil, errors.New("namespace filter is empty")
	}
	if onIdle == nil {
		return nil, errors.New("on idle callback is nil")
	}

	cursor, err := source.Position(ctx, start)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Observer{
		cursor:     cursor,
		handler:    handler,
		namespace:  namespace,
		checkpoint: start,
		onIdle:     onIdle,
	}, nil
}

// Observe pulls, filters and dispatches entries until the idle callback
// signals stop or an error surfaces. Handler and stream failures propagate
// immediately with the checkpoint still at the last successful dispatch;
// redelivery after a restart from that checkpoint is the at-least-once
// contract, handlers must tolerate it. The cursor is released on every
// exit path, stop signal included; observing again means constructing a
// new observer from Checkpoint().
func (o *Observer) Observe(ctx context.Context) error {
	if o.cursor == nil {
		return errors.New("observer is closed")
	}
	defer o.release()

	for {
		entry, err := o.cursor.TryNext(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if entry == nil {
			// caught up to the tail
			if err = o.onIdle(); err != nil {
				return err
			}
			continue
		}
		if o.checkpoint.Covers(entry.Timestamp) {
			// seen before a restart, never redeliver
			continue
		}
		if !MatchNamespace(entry.Namespace, o.namespace) {
			o.checkpoint = Checkpoint{Timestamp: entry.Timestamp}
			continue
		}
		switch entry.Operation {
		case OperationInsert:
			err = o.handler.OnInsert(entry)
		case OperationUpdate:
			err = o.handler.OnUpdate(entry)
		case OperationDelete:
			err = o.handler.OnDelete(entry)
		default:
			log.Debugf("skip operation[%s] ns[%s] ts[%v]", entry.Operation, entry.Namespace, entry.Timestamp)
			o.checkpoint = Checkpoint{Timestamp: entry.Timestamp}
			continue
		}
		if err != nil {
			return err
		}
		o.checkpoint = Checkpoint{Timestamp: entry.Timestamp}
	}
}

// Checkpoint returns the timestamp of the last successfully dispatched
// entry. Callers persisting their position read it between dispatch
// cycles, typically after Observe returns.
func (o *Observer) Checkpoint() Checkpoint {
	return o.checkpoint
}

func (o *Observer) Namespace() string {
	return o.namespace
}

// Close releases the underlying cursor. Safe to call more than once.
func (o *Observer) Close(ctx context.Context) error {
	if o.cursor == nil {
		return nil
	}
	err := o.cursor.Close(ctx)
	o.cursor = nil
	return errors.Trace(err)
}

func (o *Observer) release() {
	if o.cursor == nil {
		return
	}
	if err := o.cursor.Close(context.Background()); err != nil {
		log.Errorf("observer cursor close err:%v", err)
	}
	o.cursor = nil
}
