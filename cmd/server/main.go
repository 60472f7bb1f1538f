package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/usdfg/arenavoice/internal/adapters/http"
	"github.com/usdfg/arenavoice/internal/adapters/media"
	"github.com/usdfg/arenavoice/internal/adapters/rtc"
	wsctl "github.com/usdfg/arenavoice/internal/adapters/signal"
	"github.com/usdfg/arenavoice/internal/adapters/store"
	"github.com/usdfg/arenavoice/internal/app"
	"github.com/usdfg/arenavoice/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	mem := store.NewMemory()

	mic, err := media.NewMicrophone()
	if err != nil {
		log.Fatal().Err(err).Msg("microphone setup")
	}

	connector := rtc.NewConnector(webrtcConfig(cfg))

	deps := app.Deps{
		Signals:   mem.Signals(),
		Roster:    mem.Roster(),
		Requests:  mem.Requests(),
		Mutes:     mem.Mutes(),
		Device:    mic,
		Connector: connector,
	}
	settings := app.Settings{
		RecoveryDeadline: cfg.RecoveryDeadline,
		ICERestartMax:    cfg.ICERestartMax,
	}

	voice := app.NewVoiceService(deps, settings)
	admission := app.NewAdmissionController(mem.Roster(), mem.Requests())
	mutes := app.NewMuteOverrideSync(mem.Mutes())
	ws := wsctl.NewVoiceWSController(voice, admission, mutes, mem.Roster(), mem.Requests())
	ws.ReadLimit = cfg.ReadLimit
	ws.PingPeriod = cfg.PingPeriod

	r := router.SetupRouter(ctx, cfg, router.Services{
		Voice:     voice,
		Admission: admission,
		Mutes:     mutes,
		WS:        ws,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("ArenaVoice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func webrtcConfig(cfg *config.Config) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		servers = append(servers, srv)
	}
	return webrtc.Configuration{ICEServers: servers}
}
