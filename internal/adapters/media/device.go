// Package media adapts the local microphone through pion/mediadevices.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"

	// Pull in the platform microphone driver.
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

type Microphone struct {
	selector *mediadevices.CodecSelector
}

var _ core.MediaDevice = (*Microphone)(nil)

func NewMicrophone() (*Microphone, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("creating opus params: %w", err)
	}
	opusParams.BitRate = 32_000
	selector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&opusParams))
	return &Microphone{selector: selector}, nil
}

// Capture acquires the microphone. It can block on the platform
// permission prompt, so the request runs aside and the caller's ctx
// stays in charge.
func (m *Microphone) Capture(ctx context.Context) (core.MediaStream, error) {
	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Audio: func(c *mediadevices.MediaTrackConstraints) {},
			Codec: m.selector,
		})
		done <- result{stream: s, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// Late grant after cancellation: release immediately.
			if r := <-done; r.err == nil {
				closeTracks(r.stream)
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, classify(r.err)
		}
		log.Info().Str("module", "media").Int("audio_tracks", len(r.stream.GetAudioTracks())).Msg("microphone acquired")
		return &Stream{ms: r.stream}, nil
	}
}

// Stream owns the captured tracks until Close.
type Stream struct {
	ms mediadevices.MediaStream
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	audio := s.ms.GetAudioTracks()
	out := make([]webrtc.TrackLocal, 0, len(audio))
	for _, t := range audio {
		out = append(out, t)
	}
	return out
}

func (s *Stream) Close() {
	closeTracks(s.ms)
}

func closeTracks(ms mediadevices.MediaStream) {
	for _, t := range ms.GetTracks() {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track", t.ID()).Msg("closing track")
		}
	}
}

func classify(err error) *core.CaptureError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"):
		return &core.CaptureError{Reason: core.CapturePermissionDenied, Err: err}
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return &core.CaptureError{Reason: core.CaptureDeviceBusy, Err: err}
	case strings.Contains(msg, "not found"), strings.Contains(msg, "failed to find"):
		return &core.CaptureError{Reason: core.CaptureNotFound, Err: err}
	default:
		return &core.CaptureError{Reason: core.CaptureDeviceUnavailable, Err: err}
	}
}
