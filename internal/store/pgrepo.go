package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type pgRepo struct {
	db *sql.DB
}

// NewPGRepository opens a Postgres-backed repository.
func NewPGRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgRepo{db: db}, nil
}

func (r *pgRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *pgRepo) FindOrCreateUser(ctx context.Context, email, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	const q = `
		INSERT INTO arena_users (id, email, name, rating)
		VALUES ($1, $2, $3, 1200)
		ON CONFLICT (email) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), arena_users.name)
		RETURNING id, email, name, rating, games_won, games_lost, games_drawn, created_at`
	u := &User{}
	err := r.db.QueryRowContext(ctx, q, uuid.NewString(), email, strings.TrimSpace(name)).Scan(
		&u.ID, &u.Email, &u.Name, &u.Rating, &u.GamesWon, &u.GamesLost, &u.GamesDrawn, &u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return u, nil
}

func (r *pgRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, email, name, rating, games_won, games_lost, games_drawn, created_at
		FROM arena_users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (r *pgRepo) GetUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT id, email, name, rating, games_won, games_lost, games_drawn, created_at
		FROM arena_users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *pgRepo) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Rating, &u.GamesWon, &u.GamesLost, &u.GamesDrawn, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *pgRepo) CreateMatch(ctx context.Context, rec *MatchRecord) error {
	if rec == nil {
		return fmt.Errorf("nil match record")
	}
	movesUCI, _ := json.Marshal(emptyIfNil(rec.MovesUCI))
	movesSAN, _ := json.Marshal(emptyIfNil(rec.MovesSAN))
	const q = `
		INSERT INTO arena_matches (
			id, route, white_id, white_name, black_id, black_name,
			moves_uci, moves_san, fen, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9,$10,$11)
		ON CONFLICT (route) DO NOTHING`
	res, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Route,
		rec.WhiteID, rec.WhiteName, rec.BlackID, rec.BlackName,
		movesUCI, movesSAN, rec.FEN, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateMatch
	}
	return nil
}

func (r *pgRepo) AppendMove(ctx context.Context, route string, mv MoveEntry) error {
	const q = `
		UPDATE arena_matches SET
			moves_uci = COALESCE(moves_uci, '[]'::jsonb) || to_jsonb($2::text),
			moves_san = COALESCE(moves_san, '[]'::jsonb) || to_jsonb($3::text),
			fen = $4
		WHERE route = $1`
	res, err := r.db.ExecContext(ctx, q, route, mv.UCI, mv.SAN, mv.FEN)
	if err != nil {
		return fmt.Errorf("append move: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EndMatch finalizes the row and bumps the winner/loser (or both-drawn)
// counters in one transaction.
func (r *pgRepo) EndMatch(ctx context.Context, route string, end MatchEnd) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
		UPDATE arena_matches SET
			status = $2, result = $3, end_reason = $4, winner_id = NULLIF($5, ''),
			pgn = $6, fen = $7, ended_at = $8
		WHERE route = $1
		RETURNING white_id, black_id`
	var whiteID, blackID string
	err = tx.QueryRowContext(ctx, q, route,
		end.Status, end.Result, end.Reason, end.WinnerID, end.PGN, end.FEN, end.EndedAt,
	).Scan(&whiteID, &blackID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("end match: %w", err)
	}

	if end.WinnerID != "" {
		loserID := whiteID
		if end.WinnerID == whiteID {
			loserID = blackID
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE arena_users SET games_won = games_won + 1 WHERE id = $1`, end.WinnerID); err != nil {
			return fmt.Errorf("bump winner: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE arena_users SET games_lost = games_lost + 1 WHERE id = $1`, loserID); err != nil {
			return fmt.Errorf("bump loser: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE arena_users SET games_drawn = games_drawn + 1 WHERE id = ANY($1)`,
			pq.Array([]string{whiteID, blackID})); err != nil {
			return fmt.Errorf("bump draws: %w", err)
		}
	}
	return tx.Commit()
}

func (r *pgRepo) GetMatchByRoute(ctx context.Context, route string) (*MatchRecord, error) {
	const q = `
		SELECT id, route, white_id, white_name, black_id, black_name,
			moves_uci, moves_san, COALESCE(fen, ''), COALESCE(pgn, ''),
			status, COALESCE(result, ''), COALESCE(end_reason, ''),
			COALESCE(winner_id::text, ''), created_at, COALESCE(ended_at, created_at)
		FROM arena_matches WHERE route = $1`
	return scanMatch(r.db.QueryRowContext(ctx, q, route))
}

func (r *pgRepo) ListMatchesForUser(ctx context.Context, userID string, activeOnly bool, limit int) ([]*MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, route, white_id, white_name, black_id, black_name,
			moves_uci, moves_san, COALESCE(fen, ''), COALESCE(pgn, ''),
			status, COALESCE(result, ''), COALESCE(end_reason, ''),
			COALESCE(winner_id::text, ''), created_at, COALESCE(ended_at, created_at)
		FROM arena_matches
		WHERE (white_id = $1 OR black_id = $1)`
	if activeOnly {
		q += ` AND status = 'ACTIVE'`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []*MatchRecord
	for rows.Next() {
		rec, err := scanMatchRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *pgRepo) DeleteMatch(ctx context.Context, route string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM arena_matches WHERE route = $1`, route)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row *sql.Row) (*MatchRecord, error) {
	rec, err := scanMatchFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanMatchRows(rows *sql.Rows) (*MatchRecord, error) {
	return scanMatchFrom(rows)
}

func scanMatchFrom(s rowScanner) (*MatchRecord, error) {
	rec := &MatchRecord{}
	var movesUCI, movesSAN []byte
	err := s.Scan(
		&rec.ID, &rec.Route,
		&rec.WhiteID, &rec.WhiteName, &rec.BlackID, &rec.BlackName,
		&movesUCI, &movesSAN, &rec.FEN, &rec.PGN,
		&rec.Status, &rec.Result, &rec.EndReason,
		&rec.WinnerID, &rec.CreatedAt, &rec.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(movesUCI) > 0 {
		_ = json.Unmarshal(movesUCI, &rec.MovesUCI)
	}
	if len(movesSAN) > 0 {
		_ = json.Unmarshal(movesSAN, &rec.MovesSAN)
	}
	return rec, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
