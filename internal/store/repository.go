package store

import "context"

// Repository exposes the create/read/update surface the coordinator needs.
// A Postgres implementation is used when DATABASE_URL is configured and an
// in-memory one otherwise; gameplay never fails on repository errors.
type Repository interface {
	FindOrCreateUser(ctx context.Context, email, name string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)

	CreateMatch(ctx context.Context, rec *MatchRecord) error
	AppendMove(ctx context.Context, route string, mv MoveEntry) error
	EndMatch(ctx context.Context, route string, end MatchEnd) error
	GetMatchByRoute(ctx context.Context, route string) (*MatchRecord, error)
	ListMatchesForUser(ctx context.Context, userID string, activeOnly bool, limit int) ([]*MatchRecord, error)
	DeleteMatch(ctx context.Context, route string) error

	Close() error
}
