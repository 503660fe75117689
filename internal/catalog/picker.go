package catalog

import (
	"math/rand/v2"
	"sync"
)

type seededPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeededPicker returns a goroutine-safe Picker whose sequence is fixed by seed.
func NewSeededPicker(seed uint64) Picker {
	return &seededPicker{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (p *seededPicker) IntN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.IntN(n)
}

type globalPicker struct{}

// NewRandomPicker draws from the runtime's randomly seeded source.
func NewRandomPicker() Picker {
	return globalPicker{}
}

func (globalPicker) IntN(n int) int {
	return rand.IntN(n)
}
