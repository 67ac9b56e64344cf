package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"

	_ "modernc.org/sqlite"
)

// SQLite keeps every table in one SQL table of JSON documents. Conditions and
// patches are evaluated inside a SQL transaction, which gives the same
// all-or-nothing behaviour as DynamoDB for local runs and tests.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		tbl TEXT NOT NULL,
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (tbl, pk, sk)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Count returns the number of items stored in table.
func (s *SQLite) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE tbl = ?`, table).Scan(&n)
	return n, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadRaw(ctx context.Context, q querier, key Key) ([]byte, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT doc FROM items WHERE tbl = ? AND pk = ? AND sk = ?`, key.Table, key.PK, key.SK,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(raw), true, nil
}

// Get decodes the item at key into out.
func (s *SQLite) Get(ctx context.Context, key Key, out any) error {
	raw, ok, err := loadRaw(ctx, s.db, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return json.Unmarshal(raw, out)
}

func (s *SQLite) Put(ctx context.Context, key Key, item any, cond Condition) error {
	return s.transact(ctx, []Op{PutOp(key, item, cond)})
}

func (s *SQLite) Update(ctx context.Context, key Key, patch *Patch, cond Condition) error {
	return s.transact(ctx, []Op{UpdateOp(key, patch, cond)})
}

func (s *SQLite) Delete(ctx context.Context, key Key, cond Condition) error {
	return s.transact(ctx, []Op{DeleteOp(key, cond)})
}

// TransactWrite applies ops atomically. If any condition fails nothing is written.
func (s *SQLite) TransactWrite(ctx context.Context, ops []Op) error {
	if err := checkTransaction(ops); err != nil {
		return err
	}
	return s.transact(ctx, ops)
}

func (s *SQLite) transact(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			if len(ops) > 1 {
				return fmt.Errorf("transaction item %d: %w", i, err)
			}
			return err
		}
	}
	return tx.Commit()
}

func applyOp(ctx context.Context, tx *sql.Tx, op Op) error {
	raw, exists, err := loadRaw(ctx, tx, op.Key)
	if err != nil {
		return err
	}
	var doc map[string]any
	if exists {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", op.Key, err)
		}
	}
	if err := evalCondition(op.Cond, doc, exists); err != nil {
		return fmt.Errorf("%w (%s)", err, op.Key)
	}

	switch op.Kind {
	case OpCheck:
		return nil
	case OpDelete:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE tbl = ? AND pk = ? AND sk = ?`, op.Key.Table, op.Key.PK, op.Key.SK)
		return err
	case OpPut:
		v, err := normalize(op.Item)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op.Key, err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("item for %s is not an object", op.Key)
		}
		doc = m
	case OpUpdate:
		if doc == nil {
			doc = map[string]any{}
		}
		if err := applyPatch(doc, op.Patch); err != nil {
			return fmt.Errorf("update %s: %w", op.Key, err)
		}
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}

	doc[AttrPK] = op.Key.PK
	doc[AttrSK] = op.Key.SK
	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (tbl, pk, sk, doc) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tbl, pk, sk) DO UPDATE SET doc = excluded.doc`,
		op.Key.Table, op.Key.PK, op.Key.SK, string(out),
	)
	return err
}

func evalCondition(c Condition, doc map[string]any, exists bool) error {
	if c.exists != nil && *c.exists != exists {
		if exists {
			return conflictf("item already exists")
		}
		return conflictf("item does not exist")
	}
	for _, eq := range c.equals {
		segs, err := parsePath(eq.path)
		if err != nil {
			return err
		}
		want, err := normalize(eq.value)
		if err != nil {
			return err
		}
		got, found := lookup(doc, segs)
		if !found || !equalValues(got, want) {
			return conflictf("condition on %s failed", eq.path)
		}
	}
	return nil
}

func applyPatch(doc map[string]any, p *Patch) error {
	if p.Empty() {
		return fmt.Errorf("empty patch")
	}
	for _, a := range p.sets {
		segs, err := parsePath(a.path)
		if err != nil {
			return err
		}
		v, err := normalize(a.value)
		if err != nil {
			return err
		}
		if err := assign(doc, segs, v); err != nil {
			return fmt.Errorf("set %s: %w", a.path, err)
		}
	}
	for _, a := range p.appends {
		segs, err := parsePath(a.path)
		if err != nil {
			return err
		}
		v, err := normalize(a.value)
		if err != nil {
			return err
		}
		if err := appendItems(doc, segs, v); err != nil {
			return fmt.Errorf("append %s: %w", a.path, err)
		}
	}
	for _, path := range p.removes {
		segs, err := parsePath(path)
		if err != nil {
			return err
		}
		if err := remove(doc, segs); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// BatchGet returns the items that exist among keys. Missing keys are skipped.
func (s *SQLite) BatchGet(ctx context.Context, keys []Key) ([]Document, error) {
	var docs []Document
	for _, k := range keys {
		raw, ok, err := loadRaw(ctx, s.db, k)
		if err != nil {
			return nil, fmt.Errorf("batch get %s: %w", k, err)
		}
		if !ok {
			continue
		}
		docs = append(docs, Document{Key: k, decode: func(out any) error {
			return json.Unmarshal(raw, out)
		}})
	}
	return docs, nil
}
