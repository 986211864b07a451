package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/game"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Game is the part of the game core the HTTP layer drives.
type Game interface {
	Connect(ctx context.Context, name string) (ecs.EntityID, string, error)
	Reconnect(ctx context.Context, token string) (ecs.EntityID, string, error)
	Disconnect(ctx context.Context, id ecs.EntityID) error
	Ready(ctx context.Context, id ecs.EntityID) error
	Unready(ctx context.Context, id ecs.EntityID) error
	Restart(ctx context.Context) (map[string]ecs.EntityID, error)
	PlayerState(id ecs.EntityID) (game.PlayerView, error)
	GameState(id ecs.EntityID) (game.GameView, error)
	Scan(id ecs.EntityID) (game.ScanResult, error)
	Command(id ecs.EntityID, kind game.CommandKind) error
	Snapshot() *game.Snapshot
	Subscribe() (<-chan *game.Snapshot, func())
}

// Server exposes a Game over HTTP.
type Server struct {
	game     Game
	cfg      config.APIConfig
	log      *zap.Logger
	limits   *cooldowns
	upgrader websocket.Upgrader
}

func NewServer(g Game, cfg config.APIConfig, log *zap.Logger) *Server {
	return &Server{
		game:   g,
		cfg:    cfg,
		log:    log,
		limits: newCooldowns(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the route table. Literal paths are registered before the
// generic command route so /player/ready/{id} is never read as a command.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/connect", s.connect).Methods(http.MethodPost)
	r.HandleFunc("/reconnect", s.reconnect).Methods(http.MethodPost)
	r.HandleFunc("/disconnect/{id}", s.disconnect).Methods(http.MethodPost)
	r.HandleFunc("/player/ready/{id}", s.ready).Methods(http.MethodPost)
	r.HandleFunc("/player/unready/{id}", s.unready).Methods(http.MethodPost)
	r.HandleFunc("/player/{id}/state", s.playerState).Methods(http.MethodGet)
	r.HandleFunc("/player/{id}/game-state", s.gameState).Methods(http.MethodGet)
	r.HandleFunc("/player/{id}/scan", s.scan).Methods(http.MethodGet)
	r.HandleFunc("/player/{id}/{command}", s.command).Methods(http.MethodPost)
	r.HandleFunc("/game/restart", s.restart).Methods(http.MethodPost)
	r.HandleFunc("/spectate", s.spectate).Methods(http.MethodGet)
	return r
}

// HTTPServer wraps the router with the configured timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

type connectRequest struct {
	AgentName string `json:"agent_name"`
}

type reconnectRequest struct {
	Token string `json:"reconnect_token"`
}

type connectResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"reconnect_token"`
}

type restartResponse struct {
	Message string            `json:"message"`
	Players map[string]string `json:"players"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Tick       uint64 `json:"tick"`
	Phase      string `json:"phase"`
	Generation uint32 `json:"generation"`
	Players    int    `json:"players"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	snap := s.game.Snapshot()
	writeOK(w, healthResponse{
		Status:     "ok",
		Tick:       snap.Tick,
		Phase:      snap.Phase,
		Generation: snap.Generation,
		Players:    len(snap.Players),
	})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, token, err := s.game.Connect(r.Context(), req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, connectResponse{PlayerID: id.String(), Token: token})
}

func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	var req reconnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, token, err := s.game.Reconnect(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, connectResponse{PlayerID: id.String(), Token: token})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.game.Disconnect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.limits.forget(id.String())
	writeOK(w, messageResponse{Message: fmt.Sprintf("Player %s disconnected", id)})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.game.Ready(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, messageResponse{Message: fmt.Sprintf("Player %s is ready to play", id)})
}

func (s *Server) unready(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.game.Unready(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, messageResponse{Message: fmt.Sprintf("Player %s is no longer ready", id)})
}

func (s *Server) playerState(w http.ResponseWriter, r *http.Request) {
	id, err := s.throttled(r, "state", s.cfg.StateCooldown)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.game.PlayerState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, p)
}

func (s *Server) gameState(w http.ResponseWriter, r *http.Request) {
	id, err := s.throttled(r, "game_state", s.cfg.StateCooldown)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.game.GameState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, v)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	id, err := s.throttled(r, "scan", s.cfg.ScanCooldown)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.game.Scan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, res)
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	kind, err := game.ParseCommand(mux.Vars(r)["command"])
	if err != nil {
		writeError(w, err)
		return
	}
	var id ecs.EntityID
	if kind == game.Shoot {
		id, err = s.throttled(r, "shoot", s.cfg.ShootCooldown)
	} else {
		id, err = playerID(r)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.game.Command(id, kind); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, messageResponse{Message: fmt.Sprintf("Player %s %s", id, kind)})
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	rebound, err := s.game.Restart(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.limits.reset()
	players := make(map[string]string, len(rebound))
	for name, id := range rebound {
		players[name] = id.String()
	}
	writeOK(w, restartResponse{Message: "Game restarted", Players: players})
}

// throttled parses the player id and applies the endpoint cooldown.
func (s *Server) throttled(r *http.Request, endpoint string, window time.Duration) (ecs.EntityID, error) {
	id, err := playerID(r)
	if err != nil {
		return 0, err
	}
	if err := s.limits.check(id.String(), endpoint, window); err != nil {
		return 0, err
	}
	return id, nil
}

func playerID(r *http.Request) (ecs.EntityID, error) {
	id, err := ecs.ParseEntityID(mux.Vars(r)["id"])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return id, nil
}

// decodeBody reads a small JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/spectate" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
