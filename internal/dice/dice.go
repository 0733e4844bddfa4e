// Package dice holds the Dark Moon die faces and draws outcomes from them.
package dice

import (
	"math/rand"
	"sync"
)

type Color string

const (
	Black  Color = "black"
	Red    Color = "red"
	Blue   Color = "blue"
	Yellow Color = "yellow"
)

// CountColors are the colors a player may mix in action and task rolls,
// in the order they are laid out in a dice list.
var CountColors = []Color{Black, Red, Blue}

var faces = map[Color][6]int{
	Black:  {4, 2, -2, -2, -2, 1},
	Red:    {3, 1, -2, -2, -2, -1},
	Blue:   {5, 3, -1, -2, -2, -2},
	Yellow: {0, -1, -1, -2, -2, -3},
}

// Faces returns a copy of the face values for c.
func Faces(c Color) ([]int, bool) {
	f, ok := faces[c]
	if !ok {
		return nil, false
	}
	out := make([]int, len(f))
	copy(out, f[:])
	return out, true
}

func (c Color) Valid() bool {
	_, ok := faces[c]
	return ok
}

// HasFace reports whether v is one of c's face values.
func HasFace(c Color, v int) bool {
	for _, face := range faces[c] {
		if face == v {
			return true
		}
	}
	return false
}

// Roller draws die outcomes. It is safe for concurrent use by several rooms.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRoller(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll returns a uniformly random face of c. c must be a known color.
func (r *Roller) Roll(c Color) int {
	f := faces[c]
	r.mu.Lock()
	idx := r.rng.Intn(len(f))
	r.mu.Unlock()
	return f[idx]
}
