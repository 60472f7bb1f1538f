package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/domain"
)

const statusInterval = time.Second

// startFeeds pushes session state to the client: roster and mic request
// changes as the stores mutate them, plus a periodic connection status
// snapshot. All feeds stop when the client leaves or the socket dies.
func (ctl *VoiceWSController) startFeeds(ctx context.Context, c *WsVoiceConn, session domain.SessionID) {
	roster, err := ctl.Roster.Watch(ctx, session)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("session", string(session)).Msg("roster watch")
	} else {
		go func() {
			for speakers := range roster {
				out := make([]string, 0, len(speakers))
				for _, w := range speakers {
					out = append(out, string(w))
				}
				ctl.sendJSON(c, map[string]any{"type": "roster", "speakers": out})
			}
		}()
	}

	requests, err := ctl.Requests.Watch(ctx, session)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("session", string(session)).Msg("requests watch")
	} else {
		go func() {
			for reqs := range requests {
				pending := make([]map[string]any, 0, len(reqs))
				for _, r := range reqs {
					if r.Status != domain.MicRequestPending {
						continue
					}
					pending = append(pending, map[string]any{
						"requester":  string(r.Requester),
						"created_at": r.CreatedAt,
					})
				}
				ctl.sendJSON(c, map[string]any{"type": "mic_requests", "pending": pending})
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, wallet, ok := c.identity()
				if !ok {
					return
				}
				snap, ok := ctl.Voice.Snapshot(session, wallet)
				if !ok {
					continue
				}
				// Only push on change; Status doubles as the dedup key
				// since it folds phase and restart count together.
				if snap.Status == last {
					continue
				}
				last = snap.Status
				ctl.sendJSON(c, map[string]any{"type": "status", "state": snap})
			}
		}
	}()
}
