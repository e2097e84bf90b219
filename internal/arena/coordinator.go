package arena

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/store"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// ClientConn is a live client connection as the coordinator sees it.
type ClientConn interface {
	session.Conn
	Key() string
}

// Config tunes per-match behavior.
type Config struct {
	Clock        session.ClockConfig
	Grace        time.Duration
	CleanupDelay time.Duration
}

type matchMeta struct {
	id        string
	route     string
	white     session.Identity
	black     session.Identity
	createdAt time.Time
}

// Coordinator owns the process-wide tables: active matches by route, the
// identity-to-route index, the connection-to-identity binding and the
// matchmaking queue. It reacts to named client events and routes them to the
// right match session.
type Coordinator struct {
	mu          sync.Mutex
	matches     map[string]*session.Session // by route
	metaByRoute map[string]*matchMeta
	routeByID   map[string]string           // identity -> route
	identities  map[string]session.Identity // connection key -> identity

	queue *Queue
	repo  store.Repository
	live  *store.Live
	cfg   Config
	log   *zap.Logger
}

func NewCoordinator(cfg Config, repo store.Repository, live *store.Live, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if repo == nil {
		repo = store.NewMemoryRepository()
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = time.Minute
	}
	c := &Coordinator{
		matches:     make(map[string]*session.Session),
		metaByRoute: make(map[string]*matchMeta),
		routeByID:   make(map[string]string),
		identities:  make(map[string]session.Identity),
		repo:        repo,
		live:        live,
		cfg:         cfg,
		log:         logger,
	}
	c.queue = NewQueue(c.hasActiveMatch, c.startMatch)
	return c
}

// HandleEvent dispatches one inbound named event from a connection.
func (c *Coordinator) HandleEvent(conn ClientConn, event string, data json.RawMessage) {
	switch event {
	case arenadto.EvAuthenticate:
		c.handleAuthenticate(conn, data)
	case arenadto.EvInitGame:
		c.handleInitGame(conn)
	case arenadto.EvCancelMatchmaking:
		if id, ok := c.identityFor(conn); ok {
			c.queue.Cancel(id.ID)
		}
	case arenadto.EvMove:
		c.handleMove(conn, data)
	case arenadto.EvPremove:
		c.handlePremove(conn, data)
	case arenadto.EvCancelPremove:
		c.withSession(conn, func(s *session.Session, id session.Identity) error {
			return s.ClearPremove(id.ID)
		})
	case arenadto.EvResign, arenadto.EvLeaveGame:
		c.withSession(conn, func(s *session.Session, id session.Identity) error {
			return s.Resign(id.ID)
		})
	case arenadto.EvOfferDraw:
		c.withSession(conn, func(s *session.Session, id session.Identity) error {
			return s.OfferDraw(id.ID)
		})
	case arenadto.EvAcceptDraw:
		c.withSession(conn, func(s *session.Session, id session.Identity) error {
			return s.AcceptDraw(id.ID)
		})
	case arenadto.EvRejectDraw:
		c.withSession(conn, func(s *session.Session, id session.Identity) error {
			return s.RejectDraw(id.ID)
		})
	case arenadto.EvReconnectToGame:
		c.handleReconnect(conn, data)
	default:
		c.log.Debug("unknown_event", zap.String("event", event))
	}
}

// HandleClose reacts to a dropped connection: a waiting player is dequeued,
// a playing one gets a grace timer.
func (c *Coordinator) HandleClose(conn ClientConn) {
	c.mu.Lock()
	id, bound := c.identities[conn.Key()]
	delete(c.identities, conn.Key())
	c.mu.Unlock()
	if !bound {
		return
	}
	c.queue.Cancel(id.ID)
	if s := c.sessionFor(id.ID); s != nil {
		s.HandleDisconnect(id.ID)
	}
}

// QueueLen is exposed for tests and diagnostics.
func (c *Coordinator) QueueLen() int { return c.queue.Len() }

// --- event handlers ---

func (c *Coordinator) handleAuthenticate(conn ClientConn, data json.RawMessage) {
	var req arenadto.AuthRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.log.Debug("bad_auth_payload", zap.Error(err))
			return
		}
	}
	identity := c.resolveIdentity(req)
	c.mu.Lock()
	c.identities[conn.Key()] = identity
	c.mu.Unlock()
	c.log.Info("authenticated",
		zap.String("identity", identity.ID),
		zap.String("name", identity.Name),
		zap.Bool("guest", identity.Guest),
	)
}

func (c *Coordinator) resolveIdentity(req arenadto.AuthRequest) session.Identity {
	if req.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		u, err := c.repo.FindOrCreateUser(ctx, req.Email, req.Name)
		if err == nil {
			return session.Identity{ID: u.ID, Name: u.Name, Rating: u.Rating}
		}
		c.log.Error("user_lookup_error", zap.String("email", req.Email), zap.Error(err))
	}
	name := req.Name
	if name == "" {
		name = "Guest"
	}
	// a client that presents the same guest token keeps the same identity,
	// which is what lets a guest reconnect to its match
	if tok := strings.TrimSpace(req.GuestToken); tok != "" {
		return session.Identity{ID: "guest-" + tok, Name: name, Guest: true}
	}
	return session.Identity{ID: "guest-" + randSuffix(6), Name: name, Guest: true}
}

func (c *Coordinator) handleInitGame(conn ClientConn) {
	identity, ok := c.identityFor(conn)
	if !ok {
		// unauthenticated players enter as guests
		identity = session.Identity{ID: "guest-" + randSuffix(6), Name: "Guest", Guest: true}
		c.mu.Lock()
		c.identities[conn.Key()] = identity
		c.mu.Unlock()
	}
	switch err := c.queue.Enqueue(identity, conn); err {
	case nil:
		c.send(conn, arenadto.EvWaiting, arenadto.Waiting{Message: "Waiting for opponent..."})
	case ErrAlreadyInMatch:
		c.send(conn, arenadto.EvAlreadyInGame, arenadto.Waiting{Message: "You already have an active game."})
	case ErrAlreadyWaiting:
		c.send(conn, arenadto.EvAlreadyWaiting, arenadto.Waiting{Message: "You are already in the queue."})
	default:
		c.log.Error("enqueue_error", zap.String("identity", identity.ID), zap.Error(err))
	}
}

func (c *Coordinator) handleMove(conn ClientConn, data json.RawMessage) {
	var req arenadto.MoveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeInvalidMove})
		return
	}
	c.withSessionMove(conn, req, func(s *session.Session, id session.Identity) error {
		return s.SubmitMove(id.ID, rules.MoveSpec{From: req.From, To: req.To, Promotion: req.Promotion})
	})
}

func (c *Coordinator) handlePremove(conn ClientConn, data json.RawMessage) {
	var req arenadto.MoveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeInvalidMove})
		return
	}
	c.withSessionMove(conn, req, func(s *session.Session, id session.Identity) error {
		return s.SetPremove(id.ID, rules.MoveSpec{From: req.From, To: req.To, Promotion: req.Promotion})
	})
}

func (c *Coordinator) handleReconnect(conn ClientConn, data json.RawMessage) {
	var req arenadto.ReconnectRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameRoute == "" {
		c.send(conn, arenadto.EvReconnectFailed, arenadto.ReconnectFailed{Error: "invalid reconnect request"})
		return
	}
	identity, ok := c.identityFor(conn)
	if !ok {
		c.send(conn, arenadto.EvReconnectFailed, arenadto.ReconnectFailed{Error: "authenticate first"})
		return
	}
	c.mu.Lock()
	s := c.matches[req.GameRoute]
	c.mu.Unlock()
	if s == nil {
		c.send(conn, arenadto.EvReconnectFailed, arenadto.ReconnectFailed{Error: "match not found"})
		return
	}
	cleared, err := s.HandleReconnect(identity.ID, conn)
	if err != nil {
		c.send(conn, arenadto.EvReconnectFailed, arenadto.ReconnectFailed{Error: "not a participant of this match"})
		return
	}
	color, _ := s.SeatColor(identity.ID)
	c.send(conn, arenadto.EvGameReconnected, arenadto.GameReconnected{
		Snapshot:    s.Snapshot(),
		PlayerColor: string(color),
	})
	if cleared {
		s.NotifyReconnected(identity.ID)
	}
	c.log.Info("reconnect", zap.String("identity", identity.ID), zap.String("route", req.GameRoute), zap.Bool("cleared", cleared))
}

// --- pairing and lifecycle ---

// startMatch runs inside the queue's critical section.
func (c *Coordinator) startMatch(a, b waitingEntry) {
	white, black := a, b
	// random color assignment
	if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 1 {
		white, black = b, a
	}

	matchID := uuid.NewString()
	route := randSuffix(5)
	meta := &matchMeta{
		id:        matchID,
		route:     route,
		white:     white.identity,
		black:     black.identity,
		createdAt: time.Now(),
	}

	s := session.New(session.Config{
		MatchID:    matchID,
		Route:      route,
		White:      white.identity,
		Black:      black.identity,
		WhiteConn:  white.conn,
		BlackConn:  black.conn,
		Clock:      c.cfg.Clock,
		Grace:      c.cfg.Grace,
		Recorder:   c,
		Logger:     c.log,
		OnFinished: func(res session.Result) { c.matchFinished(route, res) },
	})

	c.mu.Lock()
	c.matches[route] = s
	c.metaByRoute[route] = meta
	c.routeByID[white.identity.ID] = route
	c.routeByID[black.identity.ID] = route
	c.mu.Unlock()
	metrics.MatchesStarted.Inc()
	metrics.ActiveMatches.Inc()

	go c.persistMatchCreated(meta)

	clock := s.ClockState()
	c.sendTo(white.conn, arenadto.EvGameStart, arenadto.GameStart{
		MatchID:  matchID,
		Route:    route,
		Color:    string(session.White),
		Opponent: opponentDTO(black.identity),
		Clock:    clock,
	})
	c.sendTo(black.conn, arenadto.EvGameStart, arenadto.GameStart{
		MatchID:  matchID,
		Route:    route,
		Color:    string(session.Black),
		Opponent: opponentDTO(white.identity),
		Clock:    clock,
	})
	s.Start()
	c.log.Info("queue_pair",
		zap.String("route", route),
		zap.String("white_id", white.identity.ID),
		zap.String("black_id", black.identity.ID),
	)
}

func (c *Coordinator) persistMatchCreated(meta *matchMeta) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := &store.MatchRecord{
		ID:        meta.id,
		Route:     meta.route,
		WhiteID:   meta.white.ID,
		WhiteName: meta.white.Name,
		BlackID:   meta.black.ID,
		BlackName: meta.black.Name,
		Status:    string(session.StatusActive),
		CreatedAt: meta.createdAt,
	}
	if err := c.repo.CreateMatch(ctx, rec); err != nil {
		c.log.Error("match_persist_error", zap.String("route", meta.route), zap.Error(err))
	}
	if err := c.live.SaveSnapshot(ctx, meta.route, rec); err != nil {
		c.log.Error("live_mirror_error", zap.String("route", meta.route), zap.Error(err))
	}
	for _, id := range []string{meta.white.ID, meta.black.ID} {
		if err := c.live.IndexUser(ctx, id, meta.route); err != nil {
			c.log.Error("live_index_error", zap.String("identity", id), zap.Error(err))
		}
	}
}

// matchFinished runs on its own goroutine once a session turns terminal.
func (c *Coordinator) matchFinished(route string, res session.Result) {
	metrics.ActiveMatches.Dec()
	c.mu.Lock()
	meta := c.metaByRoute[route]
	// release the identity bindings right away: a retained terminal match is
	// read-only and must not keep its players out of the queue
	if meta != nil {
		if c.routeByID[meta.white.ID] == route {
			delete(c.routeByID, meta.white.ID)
		}
		if c.routeByID[meta.black.ID] == route {
			delete(c.routeByID, meta.black.ID)
		}
	}
	c.mu.Unlock()
	if meta == nil {
		return
	}
	// guest-only matches leave no trace; everything else is retained
	// read-only and evicted from the active table after the cleanup delay
	if meta.white.Guest && meta.black.Guest {
		c.evict(route)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.repo.DeleteMatch(ctx, route); err != nil {
			c.log.Error("match_delete_error", zap.String("route", route), zap.Error(err))
		}
		if err := c.live.Delete(ctx, route, meta.white.ID, meta.black.ID); err != nil {
			c.log.Error("live_delete_error", zap.String("route", route), zap.Error(err))
		}
		return
	}
	time.AfterFunc(c.cfg.CleanupDelay, func() {
		c.evict(route)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.live.Delete(ctx, route, meta.white.ID, meta.black.ID); err != nil {
			c.log.Error("live_delete_error", zap.String("route", route), zap.Error(err))
		}
	})
}

func (c *Coordinator) evict(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta := c.metaByRoute[route]
	delete(c.matches, route)
	delete(c.metaByRoute, route)
	if meta != nil {
		if c.routeByID[meta.white.ID] == route {
			delete(c.routeByID, meta.white.ID)
		}
		if c.routeByID[meta.black.ID] == route {
			delete(c.routeByID, meta.black.ID)
		}
	}
}

// --- session.Recorder implementation ---

func (c *Coordinator) RecordMove(ctx context.Context, matchID, route string, mv session.MoveRecord) error {
	err := c.repo.AppendMove(ctx, route, store.MoveEntry{
		UCI:   mv.UCI,
		SAN:   mv.SAN,
		Color: string(mv.Color),
		FEN:   mv.FEN,
		At:    mv.At,
	})
	if lerr := c.live.SaveSnapshot(ctx, route, map[string]any{
		"route":    route,
		"fen":      mv.FEN,
		"last_uci": mv.UCI,
		"status":   string(session.StatusActive),
	}); lerr != nil {
		c.log.Error("live_mirror_error", zap.String("route", route), zap.Error(lerr))
	}
	return err
}

func (c *Coordinator) RecordResult(ctx context.Context, matchID, route string, res session.Result, history []session.MoveRecord, fen string) error {
	c.mu.Lock()
	meta := c.metaByRoute[route]
	c.mu.Unlock()

	var pgn string
	ended := time.Now()
	if meta != nil {
		sanList := make([]string, 0, len(history))
		for _, mv := range history {
			sanList = append(sanList, mv.SAN)
		}
		pgn = store.BuildPGN(meta.white.Name, meta.black.Name, sanList, res.Code, res.Reason, ended)
	}
	return c.repo.EndMatch(ctx, route, store.MatchEnd{
		Status:   string(res.Status),
		Result:   res.Code,
		Reason:   res.Reason,
		WinnerID: res.WinnerID,
		PGN:      pgn,
		FEN:      fen,
		EndedAt:  ended,
	})
}

// --- helpers ---

func (c *Coordinator) identityFor(conn ClientConn) (session.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.identities[conn.Key()]
	return id, ok
}

func (c *Coordinator) hasActiveMatch(identityID string) bool {
	s := c.sessionFor(identityID)
	return s != nil && !s.Status().Terminal()
}

func (c *Coordinator) sessionFor(identityID string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	route, ok := c.routeByID[identityID]
	if !ok {
		return nil
	}
	return c.matches[route]
}

// withSession runs fn against the caller's active match, reporting failures
// only to the acting connection.
func (c *Coordinator) withSession(conn ClientConn, fn func(*session.Session, session.Identity) error) {
	identity, ok := c.identityFor(conn)
	if !ok {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeNotAuthorized})
		return
	}
	s := c.sessionFor(identity.ID)
	if s == nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeNotAuthorized})
		return
	}
	if err := fn(s, identity); err != nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: errorCode(err)})
	}
}

func (c *Coordinator) withSessionMove(conn ClientConn, attempted arenadto.MoveRequest, fn func(*session.Session, session.Identity) error) {
	identity, ok := c.identityFor(conn)
	if !ok {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeNotAuthorized, Attempted: &attempted})
		return
	}
	s := c.sessionFor(identity.ID)
	if s == nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: arenadto.CodeNotAuthorized, Attempted: &attempted})
		return
	}
	if err := fn(s, identity); err != nil {
		c.send(conn, arenadto.EvMoveError, arenadto.MoveError{Error: errorCode(err), Attempted: &attempted})
	}
}

func errorCode(err error) string {
	switch err {
	case session.ErrWrongTurn:
		return arenadto.CodeWrongTurn
	case session.ErrInvalidMove:
		return arenadto.CodeInvalidMove
	case session.ErrAlreadyOver:
		return arenadto.CodeAlreadyOver
	case session.ErrNotAuthorized:
		return arenadto.CodeNotAuthorized
	case session.ErrPremoveTurn:
		return arenadto.CodePremoveTurn
	}
	return arenadto.CodeInvalidMove
}

func (c *Coordinator) send(conn ClientConn, event string, payload any) {
	c.sendTo(conn, event, payload)
}

func (c *Coordinator) sendTo(conn session.Conn, event string, payload any) {
	if conn == nil {
		return
	}
	if err := conn.Send(event, payload); err != nil {
		c.log.Debug("send_failed", zap.String("event", event), zap.Error(err))
	}
}

func opponentDTO(id session.Identity) arenadto.OpponentSummary {
	return arenadto.OpponentSummary{ID: id.ID, Name: id.Name, Rating: id.Rating}
}

// randSuffix returns a hex string of n bytes; falls back to a timestamp
// fragment when crypto/rand fails.
func randSuffix(n int) string {
	if n <= 0 {
		n = 3
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err == nil {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
}
