package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/app/orch"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token. The signed
// session wins over the plain "ct" cookie, which is kept for scripts.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token, _ = c.Cookie("ct")
		}
		if token == "" {
			token = genClientToken()
		}
		if sess.Get(clientTokenKey) != token {
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c.Writer, c.Request, c.GetString(clientTokenKey))
	})

	rooms := api.Group("/rooms")
	rooms.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.ListSessions()})
	})
	rooms.GET("/:id", func(c *gin.Context) {
		d, err := o.FindSession(domain.SessionQuery{ID: domain.SessionID(c.Param("id"))})
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})
	rooms.DELETE("/:id", func(c *gin.Context) {
		sid := domain.SessionID(c.Param("id"))
		if err := o.EvictSession(sid); err != nil {
			abortWith(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Str("session", string(sid)).Str("client", c.GetString(clientTokenKey)).Msg("room evicted")
		c.Status(http.StatusNoContent)
	})

	return r
}

func abortWith(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalid):
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, gin.H{"error": domain.AsRemote(err)})
}
