package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/arena"
)

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Server accepts websocket clients and feeds their events into the
// coordinator. One goroutine per connection; dispatch is synchronous so a
// client's events keep their arrival order.
type Server struct {
	coord        *arena.Coordinator
	log          *zap.Logger
	pingInterval time.Duration
}

func NewServer(coord *arena.Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{coord: coord, log: logger, pingInterval: 30 * time.Second}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Debug("ws_accept_error", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := newClient(ctx, conn)
	s.log.Info("ws_connected", zap.String("conn", client.Key()), zap.String("remote", r.RemoteAddr))

	go s.pingLoop(ctx, conn, client.Key())

	defer func() {
		s.coord.HandleClose(client)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		s.log.Info("ws_closed", zap.String("conn", client.Key()))
	}()

	for {
		var env inboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		if env.Event == "" {
			continue
		}
		s.coord.HandleEvent(client, env.Event, env.Data)
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, key string) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Debug("ws_ping_error", zap.String("conn", key), zap.Error(err))
				return
			}
		}
	}
}
