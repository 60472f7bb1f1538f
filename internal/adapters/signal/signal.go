// Package signal exposes the voice subsystem over a WebSocket control
// channel. One connection per (session, wallet); commands flow in,
// status, roster and request snapshots flow out.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/app"
	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type VoiceWSController struct {
	Voice     *app.VoiceService
	Admission *app.AdmissionController
	Mutes     *app.MuteOverrideSync

	Roster   core.RosterStore
	Requests core.MicRequestStore

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewVoiceWSController(voice *app.VoiceService, admission *app.AdmissionController, mutes *app.MuteOverrideSync, roster core.RosterStore, requests core.MicRequestStore) *VoiceWSController {
	return &VoiceWSController{
		Voice:     voice,
		Admission: admission,
		Mutes:     mutes,
		Roster:    roster,
		Requests:  requests,
	}
}

type WsVoiceConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	// Set by the join command, cleared by leave.
	session domain.SessionID
	wallet  domain.ParticipantID
	joined  bool
	feeds   context.CancelFunc
}

func (c *WsVoiceConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsVoiceConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *VoiceWSController) HandleVoice(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsVoiceConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn, cancel)
	go ctl.readPump(ctx, conn, cancel)
}
