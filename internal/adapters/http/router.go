package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/adapters/signal"
	"github.com/usdfg/arenavoice/internal/app"
	"github.com/usdfg/arenavoice/internal/config"
	"github.com/usdfg/arenavoice/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Services struct {
	Voice     *app.VoiceService
	Admission *app.AdmissionController
	Mutes     *app.MuteOverrideSync
	WS        *signal.VoiceWSController
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ArenaVoice", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/voice", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws voice endpoint hit")
		svc.WS.HandleVoice(ctx, c)
	})

	api.GET("/sessions/:session/status", func(c *gin.Context) {
		session := domain.SessionID(c.Param("session"))
		wallet := domain.ParticipantID(c.Query("wallet")).Normalize()
		snap, ok := svc.Voice.Snapshot(session, wallet)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not in session"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.GET("/sessions/:session/speakers", func(c *gin.Context) {
		session := domain.SessionID(c.Param("session"))
		speakers, err := svc.Admission.Speakers(c.Request.Context(), session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"speakers": speakers})
	})

	api.GET("/sessions/:session/requests", func(c *gin.Context) {
		session := domain.SessionID(c.Param("session"))
		pending, err := svc.Admission.PendingRequests(c.Request.Context(), session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": pending})
	})

	api.POST("/sessions/:session/mute", func(c *gin.Context) {
		session := domain.SessionID(c.Param("session"))
		var body struct {
			Participant string `json:"participant" binding:"required"`
			SetBy       string `json:"set_by"`
			Muted       bool   `json:"muted"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target := domain.ParticipantID(body.Participant)
		var err error
		if body.Muted {
			err = svc.Mutes.SetOverride(c.Request.Context(), session, target, domain.ParticipantID(body.SetBy))
		} else {
			err = svc.Mutes.ClearOverride(c.Request.Context(), session, target)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participant": body.Participant, "muted": body.Muted})
	})

	return r
}
