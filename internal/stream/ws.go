package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"jackpotreels/internal/game"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	pingEvery = 25 * time.Second
)

type WSServer struct {
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSServer(hub *Hub, logger *slog.Logger) *WSServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSServer{
		hub: hub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and streams every update for initial.SessionID,
// starting with initial itself. It returns when either side goes away.
func (s *WSServer) Serve(w http.ResponseWriter, r *http.Request, initial game.Update) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub, cancelSub := s.hub.Subscribe(initial.SessionID)
	defer cancelSub()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	writeErr := make(chan error, 1)
	go func() {
		ping := time.NewTicker(pingEvery)
		defer ping.Stop()
		for {
			select {
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					writeErr <- err
					return
				}
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case u, ok := <-sub.C:
				if !ok {
					writeErr <- nil
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(u); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Clients only send control frames; reading keeps pongs and closes flowing.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	if n := sub.Dropped(); n > 0 {
		s.log.Info("stream closed with dropped updates", "session_id", initial.SessionID, "dropped", n)
	}
}
