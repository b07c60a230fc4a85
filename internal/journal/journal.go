// Package journal records reversible writes so that any sequence of game
// mutations can be rolled back exactly.
//
// Every helper in this package performs one elementary write (set a field,
// set or delete a map entry, insert into or remove from a slice, shuffle a
// slice) and pushes an Op describing how to invert it. A nil *Journal is
// valid: the write is performed and nothing is recorded.
package journal

import "fmt"

// OpKind identifies the variant of a recorded operation.
type OpKind int

const (
	OpSet OpKind = iota
	OpMapSet
	OpMapDelete
	OpAppend
	OpInsert
	OpPop
	OpRemoveAt
	OpClear
	OpShuffle
)

var opKindNames = map[OpKind]string{
	OpSet:       "SET",
	OpMapSet:    "MAP_SET",
	OpMapDelete: "MAP_DELETE",
	OpAppend:    "APPEND",
	OpInsert:    "INSERT",
	OpPop:       "POP",
	OpRemoveAt:  "REMOVE_AT",
	OpClear:     "CLEAR",
	OpShuffle:   "SHUFFLE",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OP_%d", int(k))
}

// Op is a single recorded write. Invert restores the value, position or
// RNG state that existed before the write.
type Op interface {
	Kind() OpKind
	Invert()
}

// Journal is a stack of inverse operations.
type Journal struct {
	ops []Op
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{ops: make([]Op, 0, 64)}
}

func (j *Journal) push(op Op) {
	if j == nil {
		return
	}
	j.ops = append(j.ops, op)
}

// Checkpoint returns the current stack length.
func (j *Journal) Checkpoint() int {
	if j == nil {
		return 0
	}
	return len(j.ops)
}

// Rollback pops and inverts operations until the stack returns to cp.
func (j *Journal) Rollback(cp int) error {
	if j == nil {
		return nil
	}
	if cp < 0 || cp > len(j.ops) {
		return fmt.Errorf("invalid checkpoint %d (journal length %d)", cp, len(j.ops))
	}
	for i := len(j.ops) - 1; i >= cp; i-- {
		j.ops[i].Invert()
		j.ops[i] = nil
	}
	j.ops = j.ops[:cp]
	return nil
}

// Commit forgets all recorded operations. Writes already performed stay.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	clear(j.ops)
	j.ops = j.ops[:0]
}

// Len returns the number of recorded operations.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.ops)
}

// Ops returns the kinds of the recorded operations, oldest first.
func (j *Journal) Ops() []OpKind {
	if j == nil {
		return nil
	}
	kinds := make([]OpKind, len(j.ops))
	for i, op := range j.ops {
		kinds[i] = op.Kind()
	}
	return kinds
}
