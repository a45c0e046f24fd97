package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/orderrelay/internal/middleware"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Dashboards never send payloads; only control frames are expected.
	maxInboundSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The token is checked by middleware before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscriber is one dashboard connection listening to a single branch.
type subscriber struct {
	hub      *Hub
	conn     *websocket.Conn
	branchID int64
	send     chan []byte
	log      *zap.Logger
}

func newSubscriber(hub *Hub, conn *websocket.Conn, branchID int64, log *zap.Logger) *subscriber {
	return &subscriber{
		hub:      hub,
		conn:     conn,
		branchID: branchID,
		send:     make(chan []byte, sendBuffer),
		log:      log.With(zap.Int64("branch_id", branchID)),
	}
}

// Handler upgrades GET /ws/branches/{bid}/orders. It must sit behind
// middleware.AuthenticateFrom and middleware.RequireBranch.
func Handler(hub *Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, ok := middleware.BranchFromContext(r.Context())
		if !ok {
			http.Error(w, "branch not resolved", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			log.Warn("websocket upgrade", zap.Error(err))
			return
		}

		sub := newSubscriber(hub, conn, branchID, log)
		if !hub.join(sub) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
			_ = conn.Close()
			return
		}
		sub.log.Debug("dashboard subscribed")

		go sub.writeLoop()
		go sub.readLoop()
	}
}

// readLoop keeps pong deadlines fresh and notices disconnects.
func (s *subscriber) readLoop() {
	defer func() {
		s.hub.leave(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("dashboard connection lost", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop sends one text frame per event, and pings between events. It
// exits when the hub closes send.
func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("dashboard write", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
