package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove covers both malformed and illegal-for-position moves.
var ErrIllegalMove = errors.New("illegal move")

// MoveSpec is a candidate move in coordinate form.
type MoveSpec struct {
	From      string
	To        string
	Promotion string
}

// UCI renders the spec as a UCI move string (e.g. "e2e4", "e7e8q").
func (m MoveSpec) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// Applied is the result of a successfully applied move.
type Applied struct {
	UCI   string
	SAN   string
	From  string
	To    string
	Color string
	Check bool
	FEN   string
}

// Verdict is the terminal evaluation of the current position.
type Verdict struct {
	Over      bool
	Checkmate bool
	Stalemate bool
	Draw      bool
}

// Engine wraps one chess game. It is not safe for concurrent use; the
// owning match session serializes all calls.
type Engine struct {
	game *nchess.Game
}

func NewEngine() *Engine {
	return &Engine{game: nchess.NewGame()}
}

// SideToMove returns "white" or "black".
func (e *Engine) SideToMove() string {
	if e.game.Position().Turn() == nchess.White {
		return "white"
	}
	return "black"
}

// FEN returns the current position.
func (e *Engine) FEN() string { return e.game.FEN() }

// ValidateSyntax checks square and promotion shape without consulting the
// position. Used for premove intake, where full legality cannot be known yet.
func ValidateSyntax(spec MoveSpec) error {
	if !validSquare(spec.From) || !validSquare(spec.To) {
		return fmt.Errorf("bad square in %q: %w", spec.UCI(), ErrIllegalMove)
	}
	switch strings.ToLower(strings.TrimSpace(spec.Promotion)) {
	case "", "q", "r", "b", "n":
	default:
		return fmt.Errorf("bad promotion %q: %w", spec.Promotion, ErrIllegalMove)
	}
	return nil
}

func validSquare(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// Apply validates the move against the live position and mutates the game.
// Returns ErrIllegalMove when the move cannot be played.
func (e *Engine) Apply(spec MoveSpec) (*Applied, error) {
	uci := spec.UCI()
	if uci == "" {
		return nil, ErrIllegalMove
	}
	pos := e.game.Position()
	mover := e.SideToMove()

	mv, err := (nchess.UCINotation{}).Decode(pos, uci)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", uci, ErrIllegalMove)
	}
	san := (nchess.AlgebraicNotation{}).Encode(pos, mv)
	if err := e.game.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%q: %w", uci, ErrIllegalMove)
	}

	return &Applied{
		UCI:   mv.String(),
		SAN:   san,
		From:  mv.S1().String(),
		To:    mv.S2().String(),
		Color: mover,
		Check: mv.HasTag(nchess.Check),
		FEN:   e.game.FEN(),
	}, nil
}

// Verdict inspects the game for terminal conditions after the last move.
func (e *Engine) Verdict() Verdict {
	out := e.game.Outcome()
	if out == nchess.NoOutcome {
		return Verdict{}
	}
	v := Verdict{Over: true}
	switch e.game.Method() {
	case nchess.Checkmate:
		v.Checkmate = true
	case nchess.Stalemate:
		v.Stalemate = true
	default:
		v.Draw = out == nchess.Draw
	}
	return v
}
