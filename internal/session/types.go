package session

import (
	"context"
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Status represents the match lifecycle. Every status except ACTIVE is
// terminal and no operation transitions out of it.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCheckmate Status = "CHECKMATE"
	StatusStalemate Status = "STALEMATE"
	StatusDraw      Status = "DRAW"
	StatusResigned  Status = "RESIGNED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusAbandoned Status = "ABANDONED"
)

func (s Status) Terminal() bool { return s != StatusActive }

// End reasons carried on results and gameOver broadcasts.
const (
	ReasonCheckmate     = "checkmate"
	ReasonStalemate     = "stalemate"
	ReasonDraw          = "draw"
	ReasonDrawAgreement = "draw_agreement"
	ReasonResignation   = "resignation"
	ReasonTimeout       = "timeout"
	ReasonAbandonment   = "abandonment"
)

// Identity is a player's durable account or guest reference. The live
// connection handle is deliberately not part of it.
type Identity struct {
	ID     string
	Name   string
	Rating int
	Guest  bool
}

// Conn is the outbound half of one client connection.
type Conn interface {
	Send(event string, payload any) error
}

// MoveRecord is one applied move in the append-only history.
type MoveRecord struct {
	UCI   string
	SAN   string
	From  string
	To    string
	Color Color
	FEN   string
	At    time.Time
}

// Result is the terminal outcome of a match.
type Result struct {
	Status      Status
	Reason      string
	WinnerID    string
	WinnerColor Color
	Code        string // PGN result token: 1-0, 0-1, 1/2-1/2
}

func resultCode(winner Color) string {
	switch winner {
	case White:
		return "1-0"
	case Black:
		return "0-1"
	}
	return "1/2-1/2"
}

// Recorder persists moves and results. Implementations must tolerate being
// called concurrently across matches; failures are logged by the session and
// never fail gameplay.
type Recorder interface {
	RecordMove(ctx context.Context, matchID, route string, mv MoveRecord) error
	RecordResult(ctx context.Context, matchID, route string, res Result, history []MoveRecord, fen string) error
}

// NopRecorder discards everything. Used when no store is configured.
type NopRecorder struct{}

func (NopRecorder) RecordMove(context.Context, string, string, MoveRecord) error {
	return nil
}

func (NopRecorder) RecordResult(context.Context, string, string, Result, []MoveRecord, string) error {
	return nil
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Operation failures surfaced only to the acting player.
const (
	ErrWrongTurn     = staticErr("wrong turn")
	ErrInvalidMove   = staticErr("invalid move")
	ErrAlreadyOver   = staticErr("match already over")
	ErrNotAuthorized = staticErr("not a participant of this match")
	ErrPremoveTurn   = staticErr("it is already your move")
)
