package journal

import "math/rand/v2"

// Rand is a seeded PCG generator whose full state can be captured and
// restored, which lets shuffles be undone together with the order they
// produced.
type Rand struct {
	src *rand.PCG
	r   *rand.Rand
}

// NewRand creates a generator from seed.
func NewRand(seed uint64) *Rand {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Rand{src: src, r: rand.New(src)}
}

// State returns the encoded generator state.
func (r *Rand) State() []byte {
	// PCG.MarshalBinary never fails.
	b, _ := r.src.MarshalBinary()
	return b
}

// Restore resets the generator to a state previously returned by State.
func (r *Rand) Restore(state []byte) error {
	return r.src.UnmarshalBinary(state)
}

// Shuffle pseudo-randomly permutes n elements.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.r.Shuffle(n, swap)
}

// IntN returns a value in [0, n).
func (r *Rand) IntN(n int) int {
	return r.r.IntN(n)
}
