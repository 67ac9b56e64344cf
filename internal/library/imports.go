package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// ImportLog remembers the content hash of each imported question file so an
// unchanged file is not written again.
type ImportLog struct {
	docs  docstore.Store
	table string
}

type importRecord struct {
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	Count      int    `json:"count"`
	ImportedAt int64  `json:"importedAt"`
}

func NewImportLog(docs docstore.Store, table string) *ImportLog {
	return &ImportLog{docs: docs, table: table}
}

func (l *ImportLog) key(path string) docstore.Key {
	return docstore.Key{Table: l.table, PK: "IMPORT#" + path, SK: "IMPORTS"}
}

// Hash returns the stored hash for path, or "" if it was never imported.
func (l *ImportLog) Hash(ctx context.Context, path string) (string, error) {
	var rec importRecord
	err := l.docs.Get(ctx, l.key(path), &rec)
	if errors.Is(err, model.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read import record %s: %w", path, err)
	}
	return rec.Hash, nil
}

// Record stores the hash of a completed import.
func (l *ImportLog) Record(ctx context.Context, path, hash string, count int) error {
	rec := importRecord{Path: path, Hash: hash, Count: count, ImportedAt: time.Now().UnixMilli()}
	return l.docs.Put(ctx, l.key(path), rec, docstore.Condition{})
}
