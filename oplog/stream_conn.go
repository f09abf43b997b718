package oplog

import (
	"context"
	"time"

	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	QueryTs   = "ts"
	QueryOpGT = "$gt"
	localDB   = "local"
)

const (
	OplogNS = "oplog.rs"

	DefaultFetchBatchSize = 1024
	defaultMaxAwaitTime   = 2 * time.Second
)

// TailSource reads the raw oplog of a replica set member through a
// tailable cursor on local.oplog.rs. The mongo client is owned by the
// caller; closing a cursor does not disconnect it.
type TailSource struct {
	client    *mongo.Client
	batchSize int32
}

func NewTailSource(client *mongo.Client) *TailSource {
	return &TailSource{
		client:    client,
		batchSize: DefaultFetchBatchSize,
	}
}

func (s *TailSource) Position(ctx context.Context, checkpoint Checkpoint) (Cursor, error) {
	if !checkpoint.Zero() {
		oldest, err := OldestTimestamp(ctx, s.client)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// the capped collection has rolled past the checkpoint, entries
		// between checkpoint and oldest are gone
		if compareTimestamp(checkpoint.Timestamp, oldest) < 0 {
			return nil, errors.Annotatef(errors.ErrUnresumableCheckpoint,
				"checkpoint[%v] oldest retained[%v]", checkpoint.Timestamp, oldest)
		}
	}

	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetMaxAwaitTime(defaultMaxAwaitTime).
		SetBatchSize(s.batchSize)
	filter := bson.M{QueryTs: bson.M{QueryOpGT: checkpoint.Timestamp}}
	cur, err := s.client.Database(localDB).Collection(OplogNS).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.NewObserverError(errors.ErrCodeStreamUnavailable, err)
	}
	return &tailCursor{cursor: cur}, nil
}

// Newest returns the current tail position, for callers starting without a
// stored checkpoint ("from now on").
func (s *TailSource) Newest(ctx context.Context) (Checkpoint, error) {
	ts, err := NewestTimestamp(ctx, s.client)
	if err != nil {
		return Checkpoint{}, errors.Trace(err)
	}
	return Checkpoint{Timestamp: ts}, nil
}

// Oldest returns the earliest retained position.
func (s *TailSource) Oldest(ctx context.Context) (Checkpoint, error) {
	ts, err := OldestTimestamp(ctx, s.client)
	if err != nil {
		return Checkpoint{}, errors.Trace(err)
	}
	return Checkpoint{Timestamp: ts}, nil
}

type tailCursor struct {
	cursor *mongo.Cursor
}

func (c *tailCursor) TryNext(ctx context.Context) (*Entry, error) {
	if c.cursor.TryNext(ctx) {
		entry := new(Entry)
		if err := c.cursor.Decode(entry); err != nil {
			return nil, errors.Annotatef(err, "decode oplog entry[%s]", c.cursor.Current)
		}
		return entry, nil
	}
	if err := c.cursor.Err(); err != nil {
		return nil, errors.NewObserverError(errors.ErrCodeStreamUnavailable, err)
	}
	if c.cursor.ID() == 0 {
		// the tailable cursor died underneath us, the caller restarts
		// from its checkpoint
		return nil, errors.Trace(errors.ErrStreamUnavailable)
	}
	return nil, nil
}

func (c *tailCursor) Close(ctx context.Context) error {
	if c.cursor == nil {
		return nil
	}
	if err := c.cursor.Close(ctx); err != nil {
		log.Errorf("oplog cursor close err:%v", err)
		return errors.Trace(err)
	}
	c.cursor = nil
	return nil
}

// NewestTimestamp reads the newest retained oplog timestamp.
func NewestTimestamp(ctx context.Context, conn *mongo.Client) (primitive.Timestamp, error) {
	return getOplogTimestamp(ctx, conn, -1)
}

// OldestTimestamp reads the oldest retained oplog timestamp.
func OldestTimestamp(ctx context.Context, conn *mongo.Client) (primitive.Timestamp, error) {
	return getOplogTimestamp(ctx, conn, 1)
}

func getOplogTimestamp(ctx context.Context, conn *mongo.Client, sortType int) (primitive.Timestamp, error) {
	var result bson.M
	opts := options.FindOne().SetSort(bson.D{{Key: "$natural", Value: sortType}})
	err := conn.Database(localDB).Collection(OplogNS).FindOne(ctx, bson.M{}, opts).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return primitive.Timestamp{}, errors.Annotate(errors.ErrStreamUnavailable, "oplog is empty")
		}
		return primitive.Timestamp{}, errors.NewObserverError(errors.ErrCodeStreamUnavailable, err)
	}

	ts, ok := result[QueryTs].(primitive.Timestamp)
	if !ok {
		return primitive.Timestamp{}, errors.Errorf("oplog entry without ts field: %v", result)
	}
	return ts, nil
}
