package signal

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

func (ctl *VoiceWSController) handleJoin(ctx context.Context, c *WsVoiceConn, data []byte) {
	var payload struct {
		Session string   `json:"session"`
		Wallet  string   `json:"wallet"`
		Peers   []string `json:"peers"`
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		ctl.sendError(c, "bad join payload")
		return
	}

	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		ctl.sendError(c, "already joined")
		return
	}
	c.mu.Unlock()

	session := domain.SessionID(payload.Session)
	wallet := domain.ParticipantID(payload.Wallet).Normalize()
	peers := make([]domain.ParticipantID, 0, len(payload.Peers))
	for _, p := range payload.Peers {
		peers = append(peers, domain.ParticipantID(p).Normalize())
	}

	// The connection outlives this command; teardown happens on leave or
	// socket close, not when the handler returns.
	if _, err := ctl.Voice.Join(context.Background(), session, wallet, peers); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("session", payload.Session).
			Str("wallet", string(wallet)).Msg("join rejected")
		ctl.sendError(c, err.Error())
		return
	}

	feedCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.session = session
	c.wallet = wallet
	c.joined = true
	c.feeds = cancel
	c.mu.Unlock()

	ctl.startFeeds(feedCtx, c, session)
	ctl.sendJSON(c, map[string]any{"type": "joined", "session": payload.Session, "wallet": string(wallet)})
}

func (ctl *VoiceWSController) handleLeave(_ context.Context, c *WsVoiceConn) {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	session, wallet := c.session, c.wallet
	cancel := c.feeds
	c.joined = false
	c.feeds = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ctl.Voice.Leave(session, wallet)
	ctl.sendJSON(c, map[string]any{"type": "left", "session": string(session)})
}

func (ctl *VoiceWSController) handleMute(_ context.Context, c *WsVoiceConn, data []byte) {
	var payload struct {
		Muted bool `json:"muted"`
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		ctl.sendError(c, "bad mute payload")
		return
	}
	session, wallet, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	if !ctl.Voice.SetMute(session, wallet, payload.Muted) {
		ctl.sendError(c, "no active connection")
	}
}

func (ctl *VoiceWSController) handleMicRequest(ctx context.Context, c *WsVoiceConn) {
	session, wallet, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	err := ctl.Admission.RequestMic(ctx, session, wallet)
	switch {
	case errors.Is(err, core.ErrRequestExists):
		ctl.sendError(c, "request already open")
	case err != nil:
		ctl.sendError(c, err.Error())
	default:
		ctl.sendJSON(c, map[string]any{"type": "mic_requested"})
	}
}

func (ctl *VoiceWSController) handleApprove(ctx context.Context, c *WsVoiceConn, data []byte) {
	var payload struct {
		Requester string `json:"requester"`
		Replace   string `json:"replace"`
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		ctl.sendError(c, "bad approve payload")
		return
	}
	session, approver, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	requester := domain.ParticipantID(payload.Requester)

	if payload.Replace != "" {
		if err := ctl.Admission.ApproveWithReplace(ctx, session, requester, domain.ParticipantID(payload.Replace), approver); err != nil {
			ctl.sendError(c, err.Error())
			return
		}
		ctl.sendJSON(c, map[string]any{"type": "approved", "requester": payload.Requester, "replaced": payload.Replace})
		return
	}

	admitted, err := ctl.Admission.Approve(ctx, session, requester, approver)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	if !admitted {
		// Full roster is a normal outcome: the admin picks someone to
		// replace and retries with the replace field set.
		ctl.sendJSON(c, map[string]any{"type": "roster_full", "requester": payload.Requester})
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "approved", "requester": payload.Requester})
}

func (ctl *VoiceWSController) handleDeny(ctx context.Context, c *WsVoiceConn, data []byte) {
	var payload struct {
		Requester string `json:"requester"`
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		ctl.sendError(c, "bad deny payload")
		return
	}
	session, approver, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	if err := ctl.Admission.Deny(ctx, session, domain.ParticipantID(payload.Requester), approver); err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "denied", "requester": payload.Requester})
}

func (ctl *VoiceWSController) handleMuteOverride(ctx context.Context, c *WsVoiceConn, data []byte) {
	var payload struct {
		Participant string `json:"participant"`
		Muted       bool   `json:"muted"`
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		ctl.sendError(c, "bad mute_override payload")
		return
	}
	session, setBy, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	target := domain.ParticipantID(payload.Participant)
	var err error
	if payload.Muted {
		err = ctl.Mutes.SetOverride(ctx, session, target, setBy)
	} else {
		err = ctl.Mutes.ClearOverride(ctx, session, target)
	}
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "mute_override_set", "participant": payload.Participant, "muted": payload.Muted})
}

func (ctl *VoiceWSController) handleStatus(c *WsVoiceConn) {
	session, wallet, ok := c.identity()
	if !ok {
		ctl.sendError(c, "not joined")
		return
	}
	snap, ok := ctl.Voice.Snapshot(session, wallet)
	if !ok {
		ctl.sendError(c, "no active connection")
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "status", "state": snap})
}

func (c *WsVoiceConn) identity() (domain.SessionID, domain.ParticipantID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.wallet, c.joined
}
