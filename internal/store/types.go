package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateMatch = errors.New("match already exists")
)

// User is a durable player account. Guests are never written here.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Rating     int       `json:"rating"`
	GamesWon   int       `json:"games_won"`
	GamesLost  int       `json:"games_lost"`
	GamesDrawn int       `json:"games_drawn"`
	CreatedAt  time.Time `json:"created_at"`
}

// MatchRecord is the persisted shape of one match.
type MatchRecord struct {
	ID        string    `json:"id"`
	Route     string    `json:"route"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name"`
	BlackID   string    `json:"black_id"`
	BlackName string    `json:"black_name"`
	MovesUCI  []string  `json:"moves_uci"`
	MovesSAN  []string  `json:"moves_san"`
	FEN       string    `json:"fen"`
	PGN       string    `json:"pgn,omitempty"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	EndReason string    `json:"end_reason,omitempty"`
	WinnerID  string    `json:"winner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// MoveEntry is one move appended to a match row.
type MoveEntry struct {
	UCI   string    `json:"uci"`
	SAN   string    `json:"san"`
	Color string    `json:"color"`
	FEN   string    `json:"fen"`
	At    time.Time `json:"at"`
}

// MatchEnd finalizes a match row and bumps the players' counters.
type MatchEnd struct {
	Status   string
	Result   string // PGN token: 1-0, 0-1, 1/2-1/2
	Reason   string
	WinnerID string
	PGN      string
	FEN      string
	EndedAt  time.Time
}
