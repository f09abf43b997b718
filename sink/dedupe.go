package sink

import (
	"strconv"
	"time"

	"github.com/katkad/mongo-observer/cache"
	"github.com/katkad/mongo-observer/oplog"
)

// Dedupe drops entries whose timestamp was already delivered within the
// TTL window. Observation is at-least-once: a restart from a committed
// checkpoint older than the last dispatch redelivers the gap, and a
// consumer that cannot make its handler idempotent can wrap it here
// instead. Timestamps are unique per entry within a single oplog, so they
// are a sufficient key.
type Dedupe struct {
	inner oplog.OperationHandler
	seen  *cache.Cache
}

// Deduplicate wraps a handler. ttl bounds memory: it only needs to exceed
// the redelivery window, which is at most the commit granularity.
func Deduplicate(inner oplog.OperationHandler, ttl time.Duration) *Dedupe {
	return &Dedupe{
		inner: inner,
		seen:  cache.NewCache(ttl, ttl),
	}
}

func (d *Dedupe) OnInsert(entry *oplog.Entry) error {
	return d.once(entry, d.inner.OnInsert)
}

func (d *Dedupe) OnUpdate(entry *oplog.Entry) error {
	return d.once(entry, d.inner.OnUpdate)
}

func (d *Dedupe) OnDelete(entry *oplog.Entry) error {
	return d.once(entry, d.inner.OnDelete)
}

func (d *Dedupe) once(entry *oplog.Entry, fn func(*oplog.Entry) error) error {
	key := strconv.FormatInt(oplog.TimestampToInt64(entry.Timestamp), 10)
	if _, dup := d.seen.Get(key); dup {
		return nil
	}
	if err := fn(entry); err != nil {
		// not marked seen, the entry is retried on redelivery
		return err
	}
	d.seen.Set(key, struct{}{}, cache.DefaultExpiration)
	return nil
}

func (d *Dedupe) Close() error {
	return d.seen.Close()
}
