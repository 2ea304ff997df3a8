// Package journal keeps a local record of every receipt returned by the ENA
// drop-box, so accessions assigned by submissions and releases can be looked
// up later without searching the logs.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Actions recorded in the journal.
const (
	ActionAdd     = "ADD"
	ActionRelease = "RELEASE"
)

var receiptsBucket = []byte("receipts")

// Record stores one drop-box receipt.
type Record struct {
	// UUID of the record
	ID uuid.UUID `json:"id"`
	// raw reads study the upload derives from
	Study string `json:"study"`
	// accession returned or targeted by the action, if any
	Accession string `json:"accession,omitempty"`
	// ADD or RELEASE
	Action string `json:"action"`
	// whether the ENA test server was used
	Test bool `json:"test"`
	// whether the receipt reported success
	Success bool `json:"success"`
	// ERROR messages of a failed receipt
	Messages []string `json:"messages,omitempty"`
	// time at which the receipt was received
	Time time.Time `json:"time"`
}

// Journal is an open journal database.
type Journal struct {
	db *bolt.DB
}

// Open opens the journal at path, creating the file and its bucket if
// necessary.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, CantOpenError{Path: path, Message: err.Error()}
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, CantOpenError{Path: path, Message: err.Error()}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(receiptsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, CantOpenError{Path: path, Message: err.Error()}
	}

	return &Journal{db: db}, nil
}

// Close saves and closes the journal. Closing a nil journal is a no-op.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	if err := j.db.Close(); err != nil {
		return CantCloseError{Message: err.Error()}
	}
	j.db = nil

	return nil
}

// Record stores a receipt. A record with no ID or time gets a fresh one.
// Recording into a nil journal is a no-op, which lets callers run with the
// journal disabled.
func (j *Journal) Record(record Record) (Record, error) {
	if j == nil {
		return record, nil
	}
	if j.db == nil {
		return record, NotOpenError{}
	}

	switch record.Action {
	case ActionAdd, ActionRelease:
	default:
		return record, NewRecordError{
			ID:      record.ID,
			Message: fmt.Sprintf("invalid action: %q", record.Action),
		}
	}
	if record.Study == "" {
		return record, NewRecordError{ID: record.ID, Message: "missing study"}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Time.IsZero() {
		record.Time = time.Now().UTC()
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return record, NewRecordError{ID: record.ID, Message: err.Error()}
	}

	err = j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(receiptsBucket).Put(recordKey(record), data)
	})
	if err != nil {
		return record, NewRecordError{ID: record.ID, Message: err.Error()}
	}

	return record, nil
}

// Records returns the records of study in chronological order, or every
// record when study is empty.
func (j *Journal) Records(study string) ([]Record, error) {
	if j == nil || j.db == nil {
		return nil, NotOpenError{}
	}

	records := make([]Record, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(receiptsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return InvalidRecordError{Key: string(k), Message: err.Error()}
			}
			if study == "" || strings.EqualFold(record.Study, study) {
				records = append(records, record)
			}
		}
		return nil
	})

	return records, err
}

// Latest returns the most recent successful record of study for action.
func (j *Journal) Latest(study, action string) (Record, error) {
	if j == nil || j.db == nil {
		return Record{}, NotOpenError{}
	}

	var found Record
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(receiptsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return InvalidRecordError{Key: string(k), Message: err.Error()}
			}
			if record.Success && record.Action == action && strings.EqualFold(record.Study, study) {
				found = record
				return nil
			}
		}
		return RecordNotFoundError{Study: study, Action: action}
	})

	return found, err
}

// recordKey indexes records by time, with the id breaking ties. The fixed
// width time layout keeps byte order chronological.
func recordKey(record Record) []byte {
	var key bytes.Buffer
	key.WriteString(record.Time.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	key.WriteByte('/')
	key.WriteString(record.ID.String())

	return key.Bytes()
}

// IsNotFound reports whether err means no matching record exists.
func IsNotFound(err error) bool {
	var nf RecordNotFoundError
	return errors.As(err, &nf)
}
