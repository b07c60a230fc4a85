package journal

import "slices"

// SetOp restores a previous scalar value.
type SetOp[T any] struct {
	Ptr *T
	Old T
}

func (o *SetOp[T]) Kind() OpKind { return OpSet }
func (o *SetOp[T]) Invert()      { *o.Ptr = o.Old }

// MapSetOp restores a map entry that was overwritten or created.
type MapSetOp[K comparable, V any] struct {
	Map     map[K]V
	Key     K
	Old     V
	Existed bool
}

func (o *MapSetOp[K, V]) Kind() OpKind { return OpMapSet }
func (o *MapSetOp[K, V]) Invert() {
	if o.Existed {
		o.Map[o.Key] = o.Old
		return
	}
	delete(o.Map, o.Key)
}

// MapDeleteOp re-inserts a deleted map entry.
type MapDeleteOp[K comparable, V any] struct {
	Map map[K]V
	Key K
	Old V
}

func (o *MapDeleteOp[K, V]) Kind() OpKind { return OpMapDelete }
func (o *MapDeleteOp[K, V]) Invert()      { o.Map[o.Key] = o.Old }

// AppendOp restores the slice header that existed before an append. Appending
// never rewrites the visible elements of the old header.
type AppendOp[T any] struct {
	Ptr *[]T
	Old []T
}

func (o *AppendOp[T]) Kind() OpKind { return OpAppend }
func (o *AppendOp[T]) Invert()      { *o.Ptr = o.Old }

// InsertOp removes an element inserted at Index.
type InsertOp[T any] struct {
	Ptr     *[]T
	Index   int
	Old     []T
	Realloc bool
}

func (o *InsertOp[T]) Kind() OpKind { return OpInsert }
func (o *InsertOp[T]) Invert() {
	if o.Realloc {
		*o.Ptr = o.Old
		return
	}
	s := *o.Ptr
	copy(s[o.Index:], s[o.Index+1:])
	*o.Ptr = o.Old
}

// PopOp restores the last element removed from a slice. The value is written
// back because a later append may have reused the freed slot.
type PopOp[T any] struct {
	Ptr   *[]T
	Old   []T
	Value T
}

func (o *PopOp[T]) Kind() OpKind { return OpPop }
func (o *PopOp[T]) Invert() {
	o.Old[len(o.Old)-1] = o.Value
	*o.Ptr = o.Old
}

// RemoveAtOp shifts a removed element back into its original index.
type RemoveAtOp[T any] struct {
	Ptr   *[]T
	Index int
	Value T
}

func (o *RemoveAtOp[T]) Kind() OpKind { return OpRemoveAt }
func (o *RemoveAtOp[T]) Invert() {
	s := *o.Ptr
	s = s[:len(s)+1]
	copy(s[o.Index+1:], s[o.Index:len(s)-1])
	s[o.Index] = o.Value
	*o.Ptr = s
}

// ClearOp restores the header of a cleared slice.
type ClearOp[T any] struct {
	Ptr *[]T
	Old []T
}

func (o *ClearOp[T]) Kind() OpKind { return OpClear }
func (o *ClearOp[T]) Invert()      { *o.Ptr = o.Old }

// ShuffleOp restores the element order and the generator state captured
// before a shuffle.
type ShuffleOp[T any] struct {
	Ptr       *[]T
	Order     []T
	Rand      *Rand
	RandState []byte
}

func (o *ShuffleOp[T]) Kind() OpKind { return OpShuffle }
func (o *ShuffleOp[T]) Invert() {
	copy(*o.Ptr, o.Order)
	// State bytes come from the same generator, so restore cannot fail.
	_ = o.Rand.Restore(o.RandState)
}

// Set writes v to *ptr.
func Set[T any](j *Journal, ptr *T, v T) {
	j.push(&SetOp[T]{Ptr: ptr, Old: *ptr})
	*ptr = v
}

// MapSet writes m[k] = v.
func MapSet[K comparable, V any](j *Journal, m map[K]V, k K, v V) {
	old, existed := m[k]
	j.push(&MapSetOp[K, V]{Map: m, Key: k, Old: old, Existed: existed})
	m[k] = v
}

// MapAdd adds delta to m[k].
func MapAdd[K comparable](j *Journal, m map[K]int, k K, delta int) {
	MapSet(j, m, k, m[k]+delta)
}

// MapDelete removes m[k] when present.
func MapDelete[K comparable, V any](j *Journal, m map[K]V, k K) {
	old, ok := m[k]
	if !ok {
		return
	}
	j.push(&MapDeleteOp[K, V]{Map: m, Key: k, Old: old})
	delete(m, k)
}

// Append appends v to *s.
func Append[T any](j *Journal, s *[]T, v T) {
	j.push(&AppendOp[T]{Ptr: s, Old: *s})
	*s = append(*s, v)
}

// Insert places v at index i of *s.
func Insert[T any](j *Journal, s *[]T, i int, v T) {
	old := *s
	realloc := len(old) == cap(old)
	j.push(&InsertOp[T]{Ptr: s, Index: i, Old: old, Realloc: realloc})
	*s = slices.Insert(old, i, v)
}

// Pop removes and returns the last element of *s. ok is false when empty.
func Pop[T any](j *Journal, s *[]T) (v T, ok bool) {
	old := *s
	if len(old) == 0 {
		return v, false
	}
	v = old[len(old)-1]
	j.push(&PopOp[T]{Ptr: s, Old: old, Value: v})
	*s = old[:len(old)-1]
	return v, true
}

// RemoveAt removes and returns the element at index i of *s.
func RemoveAt[T any](j *Journal, s *[]T, i int) T {
	old := *s
	v := old[i]
	j.push(&RemoveAtOp[T]{Ptr: s, Index: i, Value: v})
	copy(old[i:], old[i+1:])
	*s = old[:len(old)-1]
	return v
}

// Remove deletes the first element equal to v. It reports whether one was found.
func Remove[T comparable](j *Journal, s *[]T, v T) bool {
	i := slices.Index(*s, v)
	if i < 0 {
		return false
	}
	RemoveAt(j, s, i)
	return true
}

// Clear empties *s without touching its backing array.
func Clear[T any](j *Journal, s *[]T) {
	j.push(&ClearOp[T]{Ptr: s, Old: *s})
	*s = nil
}

// Shuffle permutes *s in place using r.
func Shuffle[T any](j *Journal, s *[]T, r *Rand) {
	if j != nil {
		j.push(&ShuffleOp[T]{
			Ptr:       s,
			Order:     slices.Clone(*s),
			Rand:      r,
			RandState: r.State(),
		})
	}
	items := *s
	r.Shuffle(len(items), func(a, b int) { items[a], items[b] = items[b], items[a] })
}
