package sink

import (
	"github.com/katkad/mongo-observer/log"
	"github.com/katkad/mongo-observer/oplog"
)

// Logger writes every observed entry to the log, for development and for
// dry runs against a production oplog.
type Logger struct{}

func (Logger) OnInsert(entry *oplog.Entry) error {
	log.Infof("insert ns[%s] ts[%v] o[%v]", entry.Namespace, entry.Timestamp, entry.Object)
	return nil
}

func (Logger) OnUpdate(entry *oplog.Entry) error {
	log.Infof("update ns[%s] ts[%v] o[%v] o2[%v]", entry.Namespace, entry.Timestamp, entry.Object, entry.Query)
	return nil
}

func (Logger) OnDelete(entry *oplog.Entry) error {
	log.Infof("delete ns[%s] ts[%v] o[%v]", entry.Namespace, entry.Timestamp, entry.Object)
	return nil
}
