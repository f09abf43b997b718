package oplog

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const ObjectIdColumn = "_id"

// Operation kinds carried in the "op" field. The set is closed; entries
// with any other kind are skipped by the observer, not treated as fatal.
const (
	OperationInsert = "i"
	OperationUpdate = "u"
	OperationDelete = "d"
)

// Entry is one observed oplog record. Field names reproduce the oplog wire
// shape verbatim so a raw entry round-trips unchanged through bson and json.
type Entry struct {
	Timestamp primitive.Timestamp `bson:"ts" json:"ts"`
	Term      *int64              `bson:"t" json:"t"`
	Hash      *int64              `bson:"h" json:"h"`
	Version   int                 `bson:"v" json:"v"`
	Operation string              `bson:"op" json:"op"`
	Namespace string              `bson:"ns" json:"ns"`
	Object    bson.D              `bson:"o" json:"o"`
	Query     bson.D              `bson:"o2,omitempty" json:"o2,omitempty"` // update condition
}

func (e *Entry) String() string {
	if ret, err := json.Marshal(e); err != nil {
		return err.Error()
	} else {
		return string(ret)
	}
}

// MatchNamespace is the namespace filter predicate: exact string equality,
// no prefix or pattern matching.
func MatchNamespace(entryNamespace, watched string) bool {
	return entryNamespace == watched
}

// SplitNamespace splits a fully-qualified "<database>.<collection>" string.
// Collection names may themselves contain dots, so only the first dot is
// the separator.
func SplitNamespace(namespace string) (string, string, error) {
	database, collection, found := strings.Cut(namespace, ".")
	if !found || database == "" || collection == "" {
		return "", "", fmt.Errorf("invalid namespace[%s]", namespace)
	}
	return database, collection, nil
}
