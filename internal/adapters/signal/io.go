package signal

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *VoiceWSController) writePump(ctx context.Context, c *WsVoiceConn, cancel context.CancelFunc) {
	// Closing the conn here unblocks readPump on server shutdown; the
	// reader otherwise sits in ReadMessage until the client goes away.
	defer func() {
		cancel()
		c.Close()
	}()
	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ping := time.NewTicker(period)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *VoiceWSController) readPump(ctx context.Context, c *WsVoiceConn, cancel context.CancelFunc) {
	defer func() {
		ctl.handleLeave(ctx, c)
		cancel()
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.handleCommand(ctx, c, data)
		}
	}
}

func (ctl *VoiceWSController) handleCommand(ctx context.Context, c *WsVoiceConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, c, data)
	case "leave":
		ctl.handleLeave(ctx, c)
	case "ping":
		ctl.sendJSON(c, map[string]any{"type": "pong"})
	case "mute":
		ctl.handleMute(ctx, c, data)
	case "mic_request":
		ctl.handleMicRequest(ctx, c)
	case "approve":
		ctl.handleApprove(ctx, c, data)
	case "deny":
		ctl.handleDeny(ctx, c, data)
	case "mute_override":
		ctl.handleMuteOverride(ctx, c, data)
	case "status":
		ctl.handleStatus(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
	}
}

func (ctl *VoiceWSController) sendJSON(c *WsVoiceConn, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *VoiceWSController) sendError(c *WsVoiceConn, msg string) {
	ctl.sendJSON(c, map[string]any{"type": "error", "message": msg})
}
