package oplog

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Checkpoint marks how far an observer has consumed the oplog. Entries at
// or before it are never redelivered; dispatch is strictly-greater-than.
type Checkpoint struct {
	Timestamp primitive.Timestamp `mapstructure:"timestamp" json:"timestamp"`
}

func (c Checkpoint) Zero() bool {
	return c.Timestamp.T == 0 && c.Timestamp.I == 0
}

// Covers reports whether an entry at ts has already been consumed.
func (c Checkpoint) Covers(ts primitive.Timestamp) bool {
	return compareTimestamp(ts, c.Timestamp) <= 0
}

// Int64 packs the checkpoint for persistence, seconds in the high half and
// the ordinal in the low half, so stored checkpoints sort numerically.
func (c Checkpoint) Int64() int64 {
	return TimestampToInt64(c.Timestamp)
}

func CheckpointFromInt64(v int64) Checkpoint {
	return Checkpoint{Timestamp: Int64ToTimestamp(v)}
}

func TimestampToInt64(ts primitive.Timestamp) int64 {
	return int64(ts.T)<<32 + int64(ts.I)
}

func Int64ToTimestamp(t int64) primitive.Timestamp {
	return primitive.Timestamp{T: uint32(uint64(t) >> 32), I: uint32(t)}
}

func compareTimestamp(a, b primitive.Timestamp) int {
	switch {
	case a.T < b.T:
		return -1
	case a.T > b.T:
		return 1
	case a.I < b.I:
		return -1
	case a.I > b.I:
		return 1
	}
	return 0
}
