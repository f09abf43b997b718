package checkpoint

import (
	"context"
	"time"

	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/log"
	"github.com/katkad/mongo-observer/oplog"
)

type CommitterConfig struct {
	// CommitInterval commits at most every so many milliseconds.
	// Zero disables interval commits.
	CommitInterval int64 `mapstructure:"commit-interval" json:"commit-interval" toml:"commit-interval" yaml:"commit-interval"`
	// CommitCount commits every so many observed entries.
	// Zero disables count commits.
	CommitCount int64 `mapstructure:"commit-count" json:"commit-count" toml:"commit-count" yaml:"commit-count"`
}

// Committer throttles checkpoint writes to a Store: commit every N entries
// and/or every interval, whichever comes first, plus forced commits on
// shutdown. A redelivery window no wider than the commit granularity is
// the price, which at-least-once consumers already pay.
type Committer struct {
	store Store
	cfg   CommitterConfig

	lastCommit   oplog.Checkpoint
	lastTime     time.Time
	messageCount int64
}

func NewCommitter(store Store, cfg CommitterConfig) *Committer {
	return &Committer{
		store:    store,
		cfg:      cfg,
		lastTime: time.Now(),
	}
}

// Advance records one dispatched entry and commits when the count or
// interval policy says so. force commits immediately.
func (c *Committer) Advance(ctx context.Context, cp oplog.Checkpoint, force bool) error {
	c.messageCount++

	due := force
	if c.cfg.CommitCount > 0 && c.messageCount >= c.cfg.CommitCount {
		due = true
	}
	if c.cfg.CommitInterval > 0 && time.Since(c.lastTime).Milliseconds() >= c.cfg.CommitInterval {
		due = true
	}
	if !due {
		return nil
	}
	return errors.Trace(c.commit(ctx, cp))
}

// Flush commits unconditionally, for shutdown paths.
func (c *Committer) Flush(ctx context.Context, cp oplog.Checkpoint) error {
	if cp == c.lastCommit {
		return nil
	}
	return errors.Trace(c.commit(ctx, cp))
}

func (c *Committer) commit(ctx context.Context, cp oplog.Checkpoint) error {
	if err := c.store.Save(ctx, cp); err != nil {
		return errors.Trace(err)
	}
	log.Debugf("committed checkpoint ts[%v]", cp.Timestamp)
	c.lastCommit = cp
	c.messageCount = 0
	c.lastTime = time.Now()
	return nil
}
