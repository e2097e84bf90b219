package arena

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/store"
	"github.com/park285/chess-arena/pkg/arenadto"
)

type fakeClient struct {
	key   string
	email string

	mu     sync.Mutex
	events []string
	last   map[string]any
}

func newFakeClient(key string) *fakeClient {
	return &fakeClient{key: key, last: make(map[string]any)}
}

func (c *fakeClient) Key() string { return c.key }

func (c *fakeClient) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.last[event] = payload
	return nil
}

func (c *fakeClient) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func (c *fakeClient) payload(event string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.last[event]
	return p, ok
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return NewCoordinator(Config{
		Clock:        session.ClockConfig{Initial: time.Hour, Tick: time.Hour},
		Grace:        20 * time.Millisecond,
		CleanupDelay: 20 * time.Millisecond,
	}, store.NewMemoryRepository(), nil, nil)
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func authenticate(t *testing.T, c *Coordinator, conn *fakeClient, email, name string) {
	t.Helper()
	c.HandleEvent(conn, arenadto.EvAuthenticate, raw(t, arenadto.AuthRequest{Email: email, Name: name}))
}

// startTestMatch pairs two authenticated clients and returns them ordered
// white first.
func startTestMatch(t *testing.T, c *Coordinator) (white, black *fakeClient, route string) {
	t.Helper()
	c1 := newFakeClient("conn-1")
	c2 := newFakeClient("conn-2")
	c1.email, c2.email = "p1@example.com", "p2@example.com"
	authenticate(t, c, c1, c1.email, "P1")
	authenticate(t, c, c2, c2.email, "P2")

	c.HandleEvent(c1, arenadto.EvInitGame, nil)
	if c1.count(arenadto.EvWaiting) != 1 {
		t.Fatalf("first player not told to wait")
	}
	c.HandleEvent(c2, arenadto.EvInitGame, nil)

	p1, ok := c1.payload(arenadto.EvGameStart)
	if !ok {
		t.Fatalf("first player got no game_start")
	}
	if _, ok := c2.payload(arenadto.EvGameStart); !ok {
		t.Fatalf("second player got no game_start")
	}
	gs1 := p1.(arenadto.GameStart)
	if gs1.Color == string(session.White) {
		return c1, c2, gs1.Route
	}
	return c2, c1, gs1.Route
}

func TestMatchmaking_PairsAndStarts(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, route := startTestMatch(t, c)

	if route == "" {
		t.Fatalf("empty route")
	}
	wp, _ := white.payload(arenadto.EvGameStart)
	bp, _ := black.payload(arenadto.EvGameStart)
	ws, bs := wp.(arenadto.GameStart), bp.(arenadto.GameStart)
	if ws.Color != "white" || bs.Color != "black" {
		t.Fatalf("colors wrong: %s vs %s", ws.Color, bs.Color)
	}
	if ws.Route != bs.Route || ws.MatchID != bs.MatchID {
		t.Fatalf("players put in different matches")
	}
	if ws.Opponent.Name != "P2" && ws.Opponent.Name != "P1" {
		t.Fatalf("opponent summary missing: %+v", ws.Opponent)
	}
	if c.QueueLen() != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestMatchmaking_RejectsDoubleEntry(t *testing.T) {
	c := newTestCoordinator(t)
	conn := newFakeClient("conn-1")
	authenticate(t, c, conn, "p1@example.com", "P1")

	c.HandleEvent(conn, arenadto.EvInitGame, nil)
	c.HandleEvent(conn, arenadto.EvInitGame, nil)
	if conn.count(arenadto.EvAlreadyWaiting) != 1 {
		t.Fatalf("double enqueue not rejected")
	}
}

func TestMatchmaking_RejectsPlayerAlreadyInMatch(t *testing.T) {
	c := newTestCoordinator(t)
	white, _, _ := startTestMatch(t, c)

	c.HandleEvent(white, arenadto.EvInitGame, nil)
	if white.count(arenadto.EvAlreadyInGame) != 1 {
		t.Fatalf("player with live match was queued again")
	}
}

func TestMatchmaking_AllowedAgainAfterMatchEnds(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, _ := startTestMatch(t, c)

	c.HandleEvent(black, arenadto.EvResign, nil)
	if _, ok := white.payload(arenadto.EvGameOver); !ok {
		t.Fatalf("match did not end")
	}

	// the terminal match may still be retained for reconnect reads, but the
	// winner must be free to queue again right away
	waits := white.count(arenadto.EvWaiting)
	c.HandleEvent(white, arenadto.EvInitGame, nil)
	if white.count(arenadto.EvAlreadyInGame) != 0 {
		t.Fatalf("finished match still blocks matchmaking")
	}
	if white.count(arenadto.EvWaiting) != waits+1 {
		t.Fatalf("player not queued after match end")
	}
}

func TestMatchmaking_CancelLeavesQueue(t *testing.T) {
	c := newTestCoordinator(t)
	conn := newFakeClient("conn-1")
	authenticate(t, c, conn, "p1@example.com", "P1")

	c.HandleEvent(conn, arenadto.EvInitGame, nil)
	c.HandleEvent(conn, arenadto.EvCancelMatchmaking, nil)
	if c.QueueLen() != 0 {
		t.Fatalf("cancel did not remove the entry")
	}
}

func TestMatchmaking_UnauthenticatedEntersAsGuest(t *testing.T) {
	c := newTestCoordinator(t)
	c1 := newFakeClient("conn-1")
	c2 := newFakeClient("conn-2")

	c.HandleEvent(c1, arenadto.EvInitGame, nil)
	c.HandleEvent(c2, arenadto.EvInitGame, nil)
	if _, ok := c1.payload(arenadto.EvGameStart); !ok {
		t.Fatalf("guest pairing failed")
	}
}

func TestMove_FullRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, _ := startTestMatch(t, c)

	c.HandleEvent(white, arenadto.EvMove, raw(t, arenadto.MoveRequest{From: "e2", To: "e4"}))
	if black.count(arenadto.EvGameUpdate) != 1 {
		t.Fatalf("opponent did not receive the update")
	}

	// out of turn
	c.HandleEvent(white, arenadto.EvMove, raw(t, arenadto.MoveRequest{From: "d2", To: "d4"}))
	p, ok := white.payload(arenadto.EvMoveError)
	if !ok {
		t.Fatalf("no moveError for out-of-turn move")
	}
	me := p.(arenadto.MoveError)
	if me.Error != arenadto.CodeWrongTurn || me.Attempted == nil || me.Attempted.From != "d2" {
		t.Fatalf("unexpected moveError: %+v", me)
	}
	if black.count(arenadto.EvMoveError) != 0 {
		t.Fatalf("error leaked to the opponent")
	}
}

func TestResignAndLeaveGame_EndMatch(t *testing.T) {
	for _, event := range []string{arenadto.EvResign, arenadto.EvLeaveGame} {
		t.Run(event, func(t *testing.T) {
			c := newTestCoordinator(t)
			white, black, _ := startTestMatch(t, c)

			c.HandleEvent(black, event, nil)
			p, ok := white.payload(arenadto.EvGameOver)
			if !ok {
				t.Fatalf("no gameOver after %s", event)
			}
			over := p.(arenadto.GameOver)
			if over.Reason != session.ReasonResignation || over.PlayerResult != "win" {
				t.Fatalf("unexpected gameOver: %+v", over)
			}
		})
	}
}

func TestDisconnectReconnect_OverNewConnection(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, route := startTestMatch(t, c)

	c.HandleClose(black)
	if white.count(arenadto.EvPlayerDisconnected) != 1 {
		t.Fatalf("white not told about the disconnect")
	}

	// same identity on a fresh connection
	replacement := newFakeClient("conn-3")
	authenticate(t, c, replacement, black.email, "P2")
	c.HandleEvent(replacement, arenadto.EvReconnectToGame, raw(t, arenadto.ReconnectRequest{GameRoute: route}))

	p, ok := replacement.payload(arenadto.EvGameReconnected)
	if !ok {
		rf, _ := replacement.payload(arenadto.EvReconnectFailed)
		t.Fatalf("reconnect failed: %+v", rf)
	}
	gr := p.(arenadto.GameReconnected)
	if gr.Snapshot.Route != route {
		t.Fatalf("snapshot for wrong match: %+v", gr.Snapshot)
	}
	if white.count(arenadto.EvPlayerReconnected) != 1 {
		t.Fatalf("white not told about the reconnect")
	}

	// the grace timer must not fire afterwards
	time.Sleep(60 * time.Millisecond)
	if white.count(arenadto.EvGameOver) != 0 {
		t.Fatalf("match ended despite reconnect")
	}
}

func TestGuestToken_ReconnectsAfterDrop(t *testing.T) {
	c := newTestCoordinator(t)
	g1 := newFakeClient("conn-1")
	g2 := newFakeClient("conn-2")
	c.HandleEvent(g1, arenadto.EvAuthenticate, raw(t, arenadto.AuthRequest{GuestToken: "tok-1", Name: "G1"}))
	c.HandleEvent(g2, arenadto.EvAuthenticate, raw(t, arenadto.AuthRequest{GuestToken: "tok-2", Name: "G2"}))

	c.HandleEvent(g1, arenadto.EvInitGame, nil)
	c.HandleEvent(g2, arenadto.EvInitGame, nil)
	p, ok := g1.payload(arenadto.EvGameStart)
	if !ok {
		t.Fatalf("guest match did not start")
	}
	route := p.(arenadto.GameStart).Route

	c.HandleClose(g2)

	// same token on a fresh connection resolves to the same seat
	replacement := newFakeClient("conn-3")
	c.HandleEvent(replacement, arenadto.EvAuthenticate, raw(t, arenadto.AuthRequest{GuestToken: "tok-2", Name: "G2"}))
	c.HandleEvent(replacement, arenadto.EvReconnectToGame, raw(t, arenadto.ReconnectRequest{GameRoute: route}))

	if _, ok := replacement.payload(arenadto.EvGameReconnected); !ok {
		rf, _ := replacement.payload(arenadto.EvReconnectFailed)
		t.Fatalf("guest reconnect failed: %+v", rf)
	}

	time.Sleep(60 * time.Millisecond)
	if g1.count(arenadto.EvGameOver) != 0 {
		t.Fatalf("match ended despite guest reconnect")
	}
}

func TestReconnect_UnknownRouteFails(t *testing.T) {
	c := newTestCoordinator(t)
	conn := newFakeClient("conn-1")
	authenticate(t, c, conn, "p1@example.com", "P1")

	c.HandleEvent(conn, arenadto.EvReconnectToGame, raw(t, arenadto.ReconnectRequest{GameRoute: "missing"}))
	if _, ok := conn.payload(arenadto.EvReconnectFailed); !ok {
		t.Fatalf("expected reconnect_failed")
	}
}

func TestGraceExpiry_ForfeitsAndEventuallyEvicts(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, route := startTestMatch(t, c)

	c.HandleClose(black)
	deadline := time.Now().Add(2 * time.Second)
	for white.count(arenadto.EvGameOver) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p, ok := white.payload(arenadto.EvGameOver)
	if !ok {
		t.Fatalf("grace expiry did not end the match")
	}
	if p.(arenadto.GameOver).PlayerResult != "win" {
		t.Fatalf("remaining player should win: %+v", p)
	}

	// registered players keep the row after eviction
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		_, live := c.matches[route]
		c.mu.Unlock()
		if !live {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.mu.Lock()
	_, live := c.matches[route]
	c.mu.Unlock()
	if live {
		t.Fatalf("terminal match never evicted")
	}
}

func TestDrawOffer_RoutedThroughCoordinator(t *testing.T) {
	c := newTestCoordinator(t)
	white, black, _ := startTestMatch(t, c)

	c.HandleEvent(white, arenadto.EvOfferDraw, nil)
	if black.count(arenadto.EvDrawOffer) != 1 {
		t.Fatalf("offer not delivered")
	}
	c.HandleEvent(black, arenadto.EvAcceptDraw, nil)
	p, ok := white.payload(arenadto.EvGameOver)
	if !ok || p.(arenadto.GameOver).PlayerResult != "draw" {
		t.Fatalf("agreement not finalized: %+v", p)
	}
}

func TestGuestOnlyMatch_DeletedOnFinish(t *testing.T) {
	c := newTestCoordinator(t)
	c1 := newFakeClient("conn-1")
	c2 := newFakeClient("conn-2")
	c.HandleEvent(c1, arenadto.EvInitGame, nil)
	c.HandleEvent(c2, arenadto.EvInitGame, nil)

	p, ok := c1.payload(arenadto.EvGameStart)
	if !ok {
		t.Fatalf("guest match did not start")
	}
	route := p.(arenadto.GameStart).Route

	c.HandleEvent(c1, arenadto.EvResign, nil)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		_, live := c.matches[route]
		c.mu.Unlock()
		if !live {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	found := true
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.repo.GetMatchByRoute(context.Background(), route); err == store.ErrNotFound {
			found = false
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if found {
		t.Fatalf("guest-only match row survived")
	}
}
