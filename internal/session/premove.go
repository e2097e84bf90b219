package session

import "github.com/park285/chess-arena/internal/rules"

// premoveBox holds at most one queued move per seat. It is guarded by the
// owning session's mutex.
type premoveBox struct {
	slots map[Color]rules.MoveSpec
}

func newPremoveBox() *premoveBox {
	return &premoveBox{slots: make(map[Color]rules.MoveSpec)}
}

// set stores spec for color, replacing any prior premove.
func (b *premoveBox) set(color Color, spec rules.MoveSpec) {
	b.slots[color] = spec
}

func (b *premoveBox) clear(color Color) {
	delete(b.slots, color)
}

// take removes and returns the stored premove for color. The slot is always
// emptied so a failed execution attempt never retries a stale move.
func (b *premoveBox) take(color Color) (rules.MoveSpec, bool) {
	spec, ok := b.slots[color]
	if ok {
		delete(b.slots, color)
	}
	return spec, ok
}
