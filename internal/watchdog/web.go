package watchdog

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func bind(ctx *gin.Context, receiver any) bool {
	if errBind := ctx.ShouldBindJSON(receiver); errBind != nil {
		responseErr(ctx, http.StatusBadRequest, gin.H{
			"error": "Invalid request parameters",
		})

		return false
	}

	return true
}

func responseErr(ctx *gin.Context, status int, data any) {
	ctx.AbortWithStatusJSON(status, data)
}

func responseOK(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, data)
}

func (w *Watchdog) createRouter() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if w.env.settings.RunMode != ModeTest {
		engine.Use(ginzap.GinzapWithConfig(w.log.Named("api"), &ginzap.Config{
			TimeFormat: time.RFC3339,
			UTC:        true,
			SkipPaths:  []string{"/metrics"},
		}))
	}

	_ = engine.SetTrustedProxies(nil)

	return engine
}

// tokenAuth requires the configured bearer token. An empty token disables the check.
func tokenAuth(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" {
			ctx.Next()

			return
		}

		provided := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			responseErr(ctx, http.StatusUnauthorized, gin.H{"error": "Unauthorized"})

			return
		}

		ctx.Next()
	}
}

func (w *Watchdog) setupRoutes(engine *gin.Engine) {
	engine.GET("/metrics", gin.WrapH(w.env.metrics.Handler()))

	api := engine.Group("/api", tokenAuth(w.env.settings.HTTP.Token))
	api.GET("/servers", getServers(w))
	api.GET("/servers/:name/players", getPlayers(w))
	api.POST("/servers/:name/:action", postPunishment(w))
	api.GET("/history/:player_id", getHistory(w))
	api.GET("/events", gin.WrapH(w.stream))
}

// Router returns the http handler of the operator api.
func (w *Watchdog) Router() http.Handler {
	engine := w.createRouter()
	w.setupRoutes(engine)

	return engine
}

func (w *Watchdog) serveHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              w.env.settings.HTTP.ListenAddr,
		Handler:           w.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	w.log.Info("Service status changed", zap.String("state", "ready"), zap.String("addr", httpServer.Addr))
	defer w.log.Info("Service status changed", zap.String("state", "stopped"))

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			w.log.Error("Error shutting down http service", zap.Error(errShutdown))
		}
	}()

	if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errors.Wrap(errServe, "HTTP server returned error")
	}

	return nil
}
