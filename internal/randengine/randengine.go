// Package randengine wraps golang.org/x/exp/rand with a seedable, lock-guarded source.
package randengine

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// Engine is a seeded random source that is safe for concurrent use.
type Engine struct {
	rnd *rand.Rand
	mtx sync.Mutex
}

// New creates an engine. A zero seed picks one from the current time.
func New(seed uint64) *Engine {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Engine{rnd: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform value in [0, 1).
func (e *Engine) Float64() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.rnd.Float64()
}
