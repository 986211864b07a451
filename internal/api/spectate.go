package api

import (
	"net/http"
	"time"

	"github.com/arenasim/server/internal/game"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// spectate streams msgpack-encoded snapshots as binary frames, at most one
// per spectate interval. The first frame is the current snapshot.
func (s *Server) spectate(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("spectate upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := s.game.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("spectator connected")
	defer log.Info("spectator disconnected")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.sendSnapshot(conn, s.game.Snapshot()); err != nil {
		return
	}
	last := time.Now()

	for {
		select {
		case <-closed:
			return
		case snap := <-updates:
			if time.Since(last) < s.cfg.SpectateInterval {
				continue
			}
			if err := s.sendSnapshot(conn, snap); err != nil {
				log.Debug("spectator write failed", zap.Error(err))
				return
			}
			last = time.Now()
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn, snap *game.Snapshot) error {
	frame, err := msgpack.Marshal(snap)
	if err != nil {
		s.log.Error("encode snapshot", zap.Error(err))
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// readPump discards client frames and reports when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
