package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/game"
	"github.com/arenasim/server/internal/session"
	"github.com/arenasim/server/internal/world"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*Server, *game.Game) {
	t.Helper()
	cfg := config.Default()
	g, err := game.New(cfg, game.Deps{Log: zaptest.NewLogger(t), Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewServer(g, cfg.API, zaptest.NewLogger(t)), g
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func connectAgent(t *testing.T, h http.Handler, name string) connectResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/connect", connectRequest{AgentName: name})
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp connectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PlayerID == "" || resp.Token == "" {
		t.Fatalf("expected an id and token, got %+v", resp)
	}
	return resp
}

func TestConnectAndReadState(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	agent := connectAgent(t, h, "alpha")

	rec := do(t, h, http.MethodGet, "/player/"+agent.PlayerID+"/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var p game.PlayerView
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID != agent.PlayerID || p.Agent != "alpha" || p.Health != 5 {
		t.Errorf("unexpected player %+v", p)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	agent := connectAgent(t, h, "alpha")
	unknown := fmt.Sprintf("%016x", 999)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/player/" + unknown + "/state", http.StatusNotFound},
		{http.MethodGet, "/player/not-hex/state", http.StatusBadRequest},
		{http.MethodPost, "/player/" + agent.PlayerID + "/thrust_forward", http.StatusConflict},
		{http.MethodPost, "/player/" + agent.PlayerID + "/jump", http.StatusBadRequest},
		{http.MethodPost, "/disconnect/" + unknown, http.StatusNotFound},
		{http.MethodPost, "/player/ready/" + unknown, http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := do(t, h, c.method, c.path, nil); rec.Code != c.want {
			t.Errorf("%s %s: expected %d, got %d: %s", c.method, c.path, c.want, rec.Code, rec.Body)
		}
	}

	rec := do(t, h, http.MethodPost, "/connect", connectRequest{AgentName: "bad\aname"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid name, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Detail == "" {
		t.Errorf("expected an error detail, got %q (%v)", rec.Body.String(), err)
	}
}

func TestStateCooldown(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	agent := connectAgent(t, h, "alpha")

	path := "/player/" + agent.PlayerID + "/game-state"
	if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 inside the cooldown, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/player/"+agent.PlayerID+"/scan", nil); rec.Code != http.StatusOK {
		t.Errorf("expected other endpoints to have their own window, got %d", rec.Code)
	}
}

func TestReadyRouteIsNotACommand(t *testing.T) {
	srv, g := newTestServer(t)
	h := srv.Router()
	agent := connectAgent(t, h, "alpha")

	rec := do(t, h, http.MethodPost, "/player/ready/"+agent.PlayerID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ph := g.Snapshot().Phase; ph != "countdown" && ph != "active" {
		t.Errorf("expected the match to start, got %s", ph)
	}
}

func TestReconnectAndRestart(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	agent := connectAgent(t, h, "alpha")

	rec := do(t, h, http.MethodPost, "/reconnect", reconnectRequest{Token: agent.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("reconnect: expected 200, got %d", rec.Code)
	}
	var again connectResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &again)
	if again.PlayerID != agent.PlayerID {
		t.Errorf("expected the connected player back, got %s", again.PlayerID)
	}

	rec = do(t, h, http.MethodPost, "/game/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restart: expected 200, got %d", rec.Code)
	}
	var resp restartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	newID, ok := resp.Players["alpha"]
	if !ok || newID == agent.PlayerID {
		t.Fatalf("expected alpha rebound to a new id, got %+v", resp.Players)
	}
	if rec := do(t, h, http.MethodGet, "/player/"+agent.PlayerID+"/state", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for the old id, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/player/"+newID+"/state", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for the new id, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Phase != "lobby" {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestSpectateStreamsMsgpack(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/spectate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if kind != websocket.BinaryMessage {
			t.Fatalf("expected a binary frame, got %d", kind)
		}
		var snap game.Snapshot
		if err := msgpack.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		if snap.Phase != "lobby" || snap.Width != 800 || len(snap.Obstacles) == 0 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{world.ErrStaleGeneration, http.StatusNotFound},
		{session.ErrUnknownToken, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", world.ErrEliminated), http.StatusConflict},
		{world.ErrSpawnProtected, http.StatusConflict},
		{world.ErrOnCooldown, http.StatusTooManyRequests},
		{world.ErrRateLimited, http.StatusTooManyRequests},
		{game.ErrStopped, http.StatusServiceUnavailable},
		{world.ErrInvariant, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusOf(c.err); got != c.want {
			t.Errorf("statusOf(%v) = %d, expected %d", c.err, got, c.want)
		}
	}
}

func TestCooldownWindow(t *testing.T) {
	c := newCooldowns()
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }

	if err := c.check("p", "shoot", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	now = now.Add(60 * time.Millisecond)
	if err := c.check("p", "shoot", 100*time.Millisecond); !errors.Is(err, world.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	now = now.Add(40 * time.Millisecond)
	if err := c.check("p", "shoot", 100*time.Millisecond); err != nil {
		t.Errorf("expected the window measured from the accepted call, got %v", err)
	}
	c.forget("p")
	if err := c.check("p", "shoot", 100*time.Millisecond); err != nil {
		t.Errorf("expected forget to clear the window, got %v", err)
	}
}
