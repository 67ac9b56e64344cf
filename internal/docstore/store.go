// Package docstore addresses documents by (table, partition key, sort key) and
// supports conditional writes, attribute-path patches and all-or-nothing
// multi-item transactions.
package docstore

import (
	"context"
	"fmt"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// MaxTransactItems is the most items a single TransactWrite may touch.
const MaxTransactItems = 100

// Attribute names holding the key inside every stored item.
const (
	AttrPK = "pKey"
	AttrSK = "sKey"
)

// Key locates one document.
type Key struct {
	Table string
	PK    string
	SK    string
}

func (k Key) String() string {
	return k.Table + "/" + k.PK + "/" + k.SK
}

// Store is the document database used by the exam core.
//
// Get returns model.ErrNotFound when the item is absent. Writes whose
// condition does not hold return an error wrapping model.ErrConflict.
type Store interface {
	Get(ctx context.Context, key Key, out any) error
	Put(ctx context.Context, key Key, item any, cond Condition) error
	Update(ctx context.Context, key Key, patch *Patch, cond Condition) error
	Delete(ctx context.Context, key Key, cond Condition) error
	TransactWrite(ctx context.Context, ops []Op) error
	BatchGet(ctx context.Context, keys []Key) ([]Document, error)
}

// Document is one item returned from BatchGet.
type Document struct {
	Key    Key
	decode func(out any) error
}

// Decode unmarshals the document into out.
func (d Document) Decode(out any) error {
	return d.decode(out)
}

type equality struct {
	path  string
	value any
}

// Condition guards a write. The zero value always holds.
type Condition struct {
	exists *bool
	equals []equality
}

// ItemExists holds when the target item is present.
func ItemExists() Condition {
	b := true
	return Condition{exists: &b}
}

// ItemNotExists holds when the target item is absent.
func ItemNotExists() Condition {
	b := false
	return Condition{exists: &b}
}

// Equal adds the requirement that the attribute at path equals v.
func (c Condition) Equal(path string, v any) Condition {
	eqs := make([]equality, len(c.equals), len(c.equals)+1)
	copy(eqs, c.equals)
	c.equals = append(eqs, equality{path: path, value: v})
	return c
}

// IsZero reports whether the condition is unconditional.
func (c Condition) IsZero() bool {
	return c.exists == nil && len(c.equals) == 0
}

type assignment struct {
	path  string
	value any
}

// Patch is a set of attribute-path changes applied in a single write.
// Paths use dots for map fields and [n] for list elements, e.g.
// "questionSection[2].title" or "settings.mCoinReward.rewardCoin".
type Patch struct {
	sets    []assignment
	appends []assignment
	removes []string
}

// NewPatch returns an empty patch.
func NewPatch() *Patch {
	return &Patch{}
}

// Set assigns v at path.
func (p *Patch) Set(path string, v any) *Patch {
	p.sets = append(p.sets, assignment{path: path, value: v})
	return p
}

// Append adds the elements of the slice items to the end of the list at path,
// creating the list when it is missing.
func (p *Patch) Append(path string, items any) *Patch {
	p.appends = append(p.appends, assignment{path: path, value: items})
	return p
}

// Remove deletes the attribute or list element at path.
func (p *Patch) Remove(path string) *Patch {
	p.removes = append(p.removes, path)
	return p
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p == nil || len(p.sets)+len(p.appends)+len(p.removes) == 0
}

// Paths lists every attribute path the patch touches, in order.
func (p *Patch) Paths() []string {
	var out []string
	for _, a := range p.sets {
		out = append(out, a.path)
	}
	for _, a := range p.appends {
		out = append(out, a.path)
	}
	return append(out, p.removes...)
}

// OpKind selects what a transaction item does.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
	OpCheck
)

// Op is one item of a TransactWrite.
type Op struct {
	Kind  OpKind
	Key   Key
	Item  any
	Patch *Patch
	Cond  Condition
}

// PutOp writes item at key.
func PutOp(key Key, item any, cond Condition) Op {
	return Op{Kind: OpPut, Key: key, Item: item, Cond: cond}
}

// UpdateOp applies patch at key.
func UpdateOp(key Key, patch *Patch, cond Condition) Op {
	return Op{Kind: OpUpdate, Key: key, Patch: patch, Cond: cond}
}

// DeleteOp removes the item at key.
func DeleteOp(key Key, cond Condition) Op {
	return Op{Kind: OpDelete, Key: key, Cond: cond}
}

// CheckOp only asserts cond on the item at key.
func CheckOp(key Key, cond Condition) Op {
	return Op{Kind: OpCheck, Key: key, Cond: cond}
}

// checkTransaction rejects transactions the backing store would refuse.
func checkTransaction(ops []Op) error {
	if len(ops) == 0 {
		return model.Validation("EmptyTransaction", "transaction has no items")
	}
	if len(ops) > MaxTransactItems {
		return model.Validation("TransactionTooLarge",
			fmt.Sprintf("transaction has %d items, limit is %d", len(ops), MaxTransactItems))
	}
	seen := make(map[Key]bool, len(ops))
	for _, op := range ops {
		if seen[op.Key] {
			return model.Validation("DuplicateTransactionItem", "item "+op.Key.String()+" appears twice")
		}
		seen[op.Key] = true
		if op.Kind == OpCheck && op.Cond.IsZero() {
			return model.Validation("EmptyConditionCheck", "condition check on "+op.Key.String()+" has no condition")
		}
	}
	return nil
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrConflict}, args...)...)
}
