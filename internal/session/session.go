package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// Config wires one match session.
type Config struct {
	MatchID string
	Route   string

	White     Identity
	Black     Identity
	WhiteConn Conn
	BlackConn Conn

	Clock ClockConfig
	Grace time.Duration

	Recorder   Recorder
	Logger     *zap.Logger
	OnFinished func(Result)
}

type seat struct {
	identity Identity
	color    Color
	conn     Conn
}

// Session is the live coordinator for one match between two identities. All
// externally triggered operations — client events, clock ticks, grace-timer
// expiries — serialize on its mutex; distinct matches are fully independent.
type Session struct {
	mu sync.Mutex

	id    string
	route string

	seats        map[Color]*seat
	engine       *rules.Engine
	clock        *Clock
	monitor      *Monitor
	premoves     *premoveBox
	drawOffers   map[string]struct{}
	disconnected map[string]struct{}
	history      []MoveRecord

	status   Status
	result   *Result
	graceGen map[string]uint64

	moveCh     chan MoveRecord
	rec        Recorder
	onFinished func(Result)
	log        *zap.Logger
	grace      time.Duration
	createdAt  time.Time
}

// New builds a session in the ACTIVE state. The clock does not run until
// Start is called.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = NopRecorder{}
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	s := &Session{
		id:    cfg.MatchID,
		route: cfg.Route,
		seats: map[Color]*seat{
			White: {identity: cfg.White, color: White, conn: cfg.WhiteConn},
			Black: {identity: cfg.Black, color: Black, conn: cfg.BlackConn},
		},
		engine:       rules.NewEngine(),
		monitor:      NewMonitor(),
		premoves:     newPremoveBox(),
		drawOffers:   make(map[string]struct{}),
		disconnected: make(map[string]struct{}),
		graceGen:     make(map[string]uint64),
		moveCh:       make(chan MoveRecord, 256),
		status:       StatusActive,
		rec:          rec,
		onFinished:   cfg.OnFinished,
		log:          logger.With(zap.String("match_id", cfg.MatchID), zap.String("route", cfg.Route)),
		grace:        cfg.Grace,
		createdAt:    time.Now(),
	}
	s.clock = NewClock(cfg.Clock, s.handleTick, s.handleFlag)
	go s.persistMoves()
	return s
}

// persistMoves drains the move queue one record at a time, so the store sees
// moves in play order even when individual writes are slow.
func (s *Session) persistMoves() {
	for mv := range s.moveCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.rec.RecordMove(ctx, s.id, s.route, mv); err != nil {
			s.log.Error("move_persist_error", zap.String("uci", mv.UCI), zap.Error(err))
		}
		cancel()
	}
}

// Start begins white's countdown.
func (s *Session) Start() {
	s.clock.Start(White)
	s.log.Info("match_start",
		zap.String("white_id", s.seats[White].identity.ID),
		zap.String("black_id", s.seats[Black].identity.ID),
	)
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Route() string { return s.route }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the terminal outcome, or nil while the match is active.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	res := *s.result
	return &res
}

// SeatIdentity returns the identity seated as color.
func (s *Session) SeatIdentity(color Color) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[color].identity
}

// SeatColor reports the color assigned to identityID.
func (s *Session) SeatColor(identityID string) (Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.seatByIDLocked(identityID); st != nil {
		return st.color, true
	}
	return "", false
}

// HasPlayer reports whether identityID participates in this match.
func (s *Session) HasPlayer(identityID string) bool {
	_, ok := s.SeatColor(identityID)
	return ok
}

// ClockState returns the clock snapshot in wire form.
func (s *Session) ClockState() arenadto.ClockState {
	return clockDTO(s.clock.Snapshot())
}

// SubmitMove applies a move for the acting identity. On success the update
// is broadcast, the clock switches, and the opponent's queued premove is
// attempted against the new position (chaining until a premove is missing,
// illegal, or the match ends).
func (s *Session) SubmitMove(actorID string, spec rules.MoveSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	if Color(s.engine.SideToMove()) != st.color {
		return ErrWrongTurn
	}
	applied, err := s.engine.Apply(spec)
	if err != nil {
		return ErrInvalidMove
	}
	s.acceptMoveLocked(applied)
	s.runPremovesLocked()
	return nil
}

// SetPremove queues a move to auto-play once it is the actor's turn. The
// spec is checked for shape only; legality is decided at execution time.
func (s *Session) SetPremove(actorID string, spec rules.MoveSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	if Color(s.engine.SideToMove()) == st.color {
		return ErrPremoveTurn
	}
	if err := rules.ValidateSyntax(spec); err != nil {
		return ErrInvalidMove
	}
	s.premoves.set(st.color, spec)
	return nil
}

// ClearPremove drops the actor's queued premove unconditionally.
func (s *Session) ClearPremove(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	s.premoves.clear(st.color)
	return nil
}

// Resign ends the match in favor of the opponent.
func (s *Session) Resign(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	s.finalizeLocked(StatusResigned, ReasonResignation, st.color.Other())
	return nil
}

// OfferDraw records a draw offer. If the opponent already offered, the match
// ends immediately by agreement; otherwise only the opponent is notified.
func (s *Session) OfferDraw(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	opp := s.seats[st.color.Other()]
	if _, offered := s.drawOffers[opp.identity.ID]; offered {
		s.finalizeLocked(StatusDraw, ReasonDrawAgreement, "")
		return nil
	}
	s.drawOffers[st.identity.ID] = struct{}{}
	s.sendLocked(opp, arenadto.EvDrawOffer, arenadto.DrawNotice{Message: "Your opponent has offered a draw."})
	s.sendLocked(st, arenadto.EvDrawOffered, arenadto.DrawNotice{Message: "Draw offer sent."})
	return nil
}

// AcceptDraw completes an outstanding opponent offer. A stale accept with no
// outstanding offer is ignored.
func (s *Session) AcceptDraw(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	opp := s.seats[st.color.Other()]
	if _, offered := s.drawOffers[opp.identity.ID]; !offered {
		s.log.Debug("stale_draw_accept", zap.String("actor", actorID))
		return nil
	}
	s.finalizeLocked(StatusDraw, ReasonDrawAgreement, "")
	return nil
}

// RejectDraw clears the opponent's offer and notifies the opponent.
func (s *Session) RejectDraw(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrAlreadyOver
	}
	st := s.seatByIDLocked(actorID)
	if st == nil {
		return ErrNotAuthorized
	}
	s.drawOffers = make(map[string]struct{})
	opp := s.seats[st.color.Other()]
	s.sendLocked(opp, arenadto.EvDrawRejected, arenadto.DrawNotice{Message: "Your draw offer was rejected."})
	return nil
}

// HandleDisconnect marks the identity disconnected and arms its grace timer.
// Returns the grace duration in ms and whether a timer was armed; a terminal
// match or a duplicate disconnect is a no-op.
func (s *Session) HandleDisconnect(identityID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return 0, false
	}
	st := s.seatByIDLocked(identityID)
	if st == nil {
		return 0, false
	}
	if _, already := s.disconnected[identityID]; already {
		return 0, false
	}
	s.disconnected[identityID] = struct{}{}
	s.graceGen[identityID]++
	gen := s.graceGen[identityID]
	s.monitor.Arm(identityID, s.grace, func() { s.graceExpired(identityID, gen) })
	s.log.Info("player_disconnected", zap.String("identity", identityID), zap.Duration("grace", s.grace))

	opp := s.seats[st.color.Other()]
	s.sendLocked(opp, arenadto.EvPlayerDisconnected, arenadto.DisconnectNotice{
		Message:   "Your opponent disconnected. They have a moment to reconnect.",
		TimeoutMs: s.grace.Milliseconds(),
	})
	return s.grace.Milliseconds(), true
}

// HandleReconnect rebinds the connection handle for identityID and cancels a
// pending grace timer. Returns whether a pending disconnect was cleared, so
// the caller knows whether to notify the opponent.
func (s *Session) HandleReconnect(identityID string, conn Conn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seatByIDLocked(identityID)
	if st == nil {
		return false, ErrNotAuthorized
	}
	st.conn = conn
	_, wasDisconnected := s.disconnected[identityID]
	delete(s.disconnected, identityID)
	s.monitor.Disarm(identityID)
	if wasDisconnected {
		s.log.Info("player_reconnected", zap.String("identity", identityID))
	}
	return wasDisconnected, nil
}

// NotifyReconnected tells the opponent of identityID that they are back.
func (s *Session) NotifyReconnected(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seatByIDLocked(identityID)
	if st == nil || s.status.Terminal() {
		return
	}
	opp := s.seats[st.color.Other()]
	s.sendLocked(opp, arenadto.EvPlayerReconnected, arenadto.ReconnectNotice{Message: "Your opponent reconnected."})
}

// Snapshot returns the full reconstructable state for a reconnecting player.
func (s *Session) Snapshot() arenadto.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := arenadto.Snapshot{
		MatchID:  s.id,
		Route:    s.route,
		Position: s.engine.FEN(),
		MovesSAN: make([]string, 0, len(s.history)),
		MovesUCI: make([]string, 0, len(s.history)),
		Turn:     s.engine.SideToMove(),
		Status:   string(s.status),
		Clock:    clockDTO(s.clock.Snapshot()),
		White:    briefDTO(s.seats[White].identity),
		Black:    briefDTO(s.seats[Black].identity),
	}
	for _, mv := range s.history {
		snap.MovesSAN = append(snap.MovesSAN, mv.SAN)
		snap.MovesUCI = append(snap.MovesUCI, mv.UCI)
	}
	if s.result != nil {
		snap.Result = &arenadto.GameOver{
			Reason:      s.result.Reason,
			Winner:      s.result.WinnerID,
			WinnerColor: string(s.result.WinnerColor),
		}
	}
	return snap
}

// --- internals; every *Locked method runs under s.mu ---

func (s *Session) seatByIDLocked(identityID string) *seat {
	for _, st := range s.seats {
		if st.identity.ID == identityID {
			return st
		}
	}
	return nil
}

// acceptMoveLocked runs the common path after the rule engine accepted a
// move: history append, fire-and-forget persistence, clock switch, draw
// offer reset, broadcast, terminal evaluation.
func (s *Session) acceptMoveLocked(applied *rules.Applied) {
	rec := MoveRecord{
		UCI:   applied.UCI,
		SAN:   applied.SAN,
		From:  applied.From,
		To:    applied.To,
		Color: Color(applied.Color),
		FEN:   applied.FEN,
		At:    time.Now(),
	}
	s.history = append(s.history, rec)
	metrics.MovesApplied.Inc()

	select {
	case s.moveCh <- rec:
	default:
		s.log.Error("move_persist_overflow", zap.String("uci", rec.UCI))
	}

	s.clock.Switch()
	s.drawOffers = make(map[string]struct{})

	verdict := s.engine.Verdict()
	update := arenadto.GameUpdate{
		Position: applied.FEN,
		LastMove: &arenadto.LastMove{
			From:  applied.From,
			To:    applied.To,
			SAN:   applied.SAN,
			UCI:   applied.UCI,
			Color: applied.Color,
		},
		IsCheck:     applied.Check,
		IsCheckmate: verdict.Checkmate,
		IsDraw:      verdict.Draw,
		Turn:        s.engine.SideToMove(),
		Clock:       clockDTO(s.clock.Snapshot()),
	}
	for _, st := range s.seats {
		s.sendLocked(st, arenadto.EvGameUpdate, update)
	}
	s.log.Info("match_move",
		zap.String("uci", applied.UCI),
		zap.String("san", applied.SAN),
		zap.String("color", applied.Color),
		zap.Int("ply", len(s.history)),
	)

	switch {
	case verdict.Checkmate:
		s.finalizeLocked(StatusCheckmate, ReasonCheckmate, Color(applied.Color))
	case verdict.Stalemate:
		s.finalizeLocked(StatusStalemate, ReasonStalemate, "")
	case verdict.Draw:
		s.finalizeLocked(StatusDraw, ReasonDraw, "")
	}
}

// runPremovesLocked attempts the queued premove of whichever side is now to
// move, repeating while premoves keep landing. An illegal premove is dropped
// silently; the quiescent opponent is never sent an error for it.
func (s *Session) runPremovesLocked() {
	for !s.status.Terminal() {
		next := Color(s.engine.SideToMove())
		spec, ok := s.premoves.take(next)
		if !ok {
			return
		}
		applied, err := s.engine.Apply(spec)
		if err != nil {
			metrics.PremovesDropped.Inc()
			s.log.Debug("premove_dropped", zap.String("uci", spec.UCI()), zap.String("color", string(next)))
			return
		}
		metrics.PremovesExecuted.Inc()
		s.acceptMoveLocked(applied)
	}
}

// finalizeLocked moves the session into a terminal state exactly once: stop
// timers, persist the result, then broadcast gameOver. Persistence failures
// are logged and never undo the in-memory outcome.
func (s *Session) finalizeLocked(status Status, reason string, winner Color) {
	if s.status.Terminal() {
		return
	}
	s.status = status
	res := Result{Status: status, Reason: reason, WinnerColor: winner, Code: resultCode(winner)}
	if winner != "" {
		res.WinnerID = s.seats[winner].identity.ID
	}
	s.result = &res

	s.clock.StopAll()
	s.monitor.DisarmAll()
	s.premoves.clear(White)
	s.premoves.clear(Black)
	// no move can be accepted after this point; the drain goroutine exits
	// once it has written everything already queued
	close(s.moveCh)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := s.rec.RecordResult(ctx, s.id, s.route, res, s.history, s.engine.FEN()); err != nil {
		s.log.Error("result_persist_error", zap.String("reason", reason), zap.Error(err))
	}
	cancel()

	for _, st := range s.seats {
		over := arenadto.GameOver{
			Reason:       reason,
			Winner:       res.WinnerID,
			WinnerColor:  string(winner),
			PlayerResult: playerResult(res, st.identity.ID),
		}
		s.sendLocked(st, arenadto.EvGameOver, over)
	}
	metrics.MatchesFinished.WithLabelValues(reason).Inc()
	s.log.Info("match_over",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.String("winner", res.WinnerID),
		zap.String("code", res.Code),
	)
	if s.onFinished != nil {
		go s.onFinished(res)
	}
}

// graceExpired runs on the timer goroutine. The generation check rejects a
// stale expiry that lost the Disarm race but only got the mutex after a
// reconnect, even when the player has disconnected again since.
func (s *Session) graceExpired(identityID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	if s.graceGen[identityID] != gen {
		return
	}
	if _, still := s.disconnected[identityID]; !still {
		return
	}
	st := s.seatByIDLocked(identityID)
	if st == nil {
		return
	}
	opp := s.seats[st.color.Other()]
	if _, oppGone := s.disconnected[opp.identity.ID]; oppGone {
		// both players vanished: drawn abandonment, no winner
		s.finalizeLocked(StatusAbandoned, ReasonAbandonment, "")
		return
	}
	s.finalizeLocked(StatusAbandoned, ReasonAbandonment, opp.color)
}

func (s *Session) handleTick(snap ClockSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	payload := clockDTO(snap)
	for _, st := range s.seats {
		s.sendLocked(st, arenadto.EvTimeUpdate, payload)
	}
}

func (s *Session) handleFlag(flagged Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.finalizeLocked(StatusTimedOut, ReasonTimeout, flagged.Other())
}

func (s *Session) sendLocked(st *seat, event string, payload any) {
	if st == nil || st.conn == nil {
		return
	}
	if err := st.conn.Send(event, payload); err != nil {
		s.log.Debug("send_failed", zap.String("event", event), zap.String("identity", st.identity.ID), zap.Error(err))
	}
}

func playerResult(res Result, identityID string) string {
	if res.WinnerID == "" {
		return "draw"
	}
	if res.WinnerID == identityID {
		return "win"
	}
	return "loss"
}

func clockDTO(snap ClockSnapshot) arenadto.ClockState {
	return arenadto.ClockState{White: snap.White, Black: snap.Black, ActiveColor: string(snap.Active)}
}

func briefDTO(id Identity) arenadto.PlayerBrief {
	return arenadto.PlayerBrief{ID: id.ID, Name: id.Name, Rating: id.Rating}
}
