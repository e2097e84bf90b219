package httpapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/store"
)

// Server is the read-only REST surface: match lookups, user history, health
// and metrics. Live play goes over the websocket endpoint, not here.
type Server struct {
	repo    store.Repository
	live    *store.Live
	log     *zap.Logger
	metrics fasthttp.RequestHandler
}

func NewServer(repo store.Repository, live *store.Live, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		repo:    repo,
		live:    live,
		log:     logger,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
}

func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())
		switch {
		case path == "/healthz":
			ctx.SetStatusCode(fasthttp.StatusOK)
			ctx.SetBodyString("ok")
		case path == "/metrics":
			s.metrics(ctx)
		case method == fasthttp.MethodGet && strings.HasPrefix(path, "/matches/"):
			s.handleGetMatch(ctx, strings.TrimPrefix(path, "/matches/"))
		case method == fasthttp.MethodGet && strings.HasPrefix(path, "/users/") && strings.HasSuffix(path, "/matches"):
			userID := strings.TrimSuffix(strings.TrimPrefix(path, "/users/"), "/matches")
			s.handleListMatches(ctx, strings.Trim(userID, "/"))
		case method == fasthttp.MethodPost && path == "/users":
			s.handleCreateUser(ctx)
		default:
			s.writeError(ctx, fasthttp.StatusNotFound, "not found")
		}
	}
}

func (s *Server) handleGetMatch(ctx *fasthttp.RequestCtx, route string) {
	if route == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "missing route")
		return
	}
	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// prefer the live mirror for in-flight matches
	if raw, err := s.live.LoadSnapshot(reqCtx, route); err == nil && len(raw) > 0 {
		ctx.SetContentType("application/json")
		ctx.SetBody(raw)
		return
	}
	rec, err := s.repo.GetMatchByRoute(reqCtx, route)
	if err == store.ErrNotFound {
		s.writeError(ctx, fasthttp.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		s.log.Error("match_lookup_error", zap.String("route", route), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(ctx, rec)
}

func (s *Server) handleListMatches(ctx *fasthttp.RequestCtx, userID string) {
	if userID == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "missing user id")
		return
	}
	activeOnly := string(ctx.QueryArgs().Peek("active")) == "true"
	limit := 20
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := s.repo.ListMatchesForUser(reqCtx, userID, activeOnly, limit)
	if err != nil {
		s.log.Error("history_lookup_error", zap.String("user", userID), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(ctx, recs)
}

func (s *Server) handleCreateUser(ctx *fasthttp.RequestCtx) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "email required")
		return
	}
	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u, err := s.repo.FindOrCreateUser(reqCtx, req.Email, req.Name)
	if err != nil {
		s.log.Error("user_create_error", zap.String("email", req.Email), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "create failed")
		return
	}
	s.writeJSON(ctx, u)
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "encode failed")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"` + msg + `"}`)
}
