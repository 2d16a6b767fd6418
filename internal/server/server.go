// Package server exposes the miner's control surface: a REST API, a WebSocket
// event push channel, the console history, and the artwork cache.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Guliveer/twitch-drops-go/internal/cache"
	"github.com/Guliveer/twitch-drops-go/internal/channels"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/inventory"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// Controller is the miner surface the server drives. *miner.Miner satisfies
// this interface.
type Controller interface {
	Status() map[string]any
	InitialState() map[string]any
	Channels() []channels.ChannelView
	Campaigns() []inventory.CampaignSnapshot
	Settings() model.Settings
	UpdateSettings(patch model.SettingsPatch) (model.Settings, error)
	SelectChannel(id string) error
	ExitManualMode()
	Reload()
	ConfirmOAuth()
	VerifyProxy(ctx context.Context, proxyURL string) error
	RequestExit()
}

// Server is the control surface HTTP server.
type Server struct {
	addr    string
	ctrl    Controller
	bus     *events.Bus
	console *Console
	art     *cache.Store
	log     *logger.Logger

	srv *http.Server
}

// New creates the control server bound to the given port.
func New(port int, ctrl Controller, bus *events.Bus, console *Console,
	art *cache.Store, log *logger.Logger) *Server {
	s := &Server{
		addr:    fmt.Sprintf(":%d", port),
		ctrl:    ctrl,
		bus:     bus,
		console: console,
		art:     art,
		log:     log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/", s.handleIndex)
	router.GET("/cache/:key", s.handleCachedImage)
	router.GET("/ws", s.handleWS)

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/channels", s.handleChannels)
		api.POST("/channels/select", s.handleSelectChannel)
		api.GET("/campaigns", s.handleCampaigns)
		api.GET("/console", s.handleConsole)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handleSetSettings)
		api.POST("/oauth/confirm", s.handleOAuthConfirm)
		api.POST("/reload", s.handleReload)
		api.POST("/close", s.handleClose)
		api.POST("/mode/exit-manual", s.handleExitManual)
		api.POST("/proxy/verify", s.handleVerifyProxy)
	}

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control server listen on %s: %w", s.addr, err)
	}
	s.log.Info("Control server listening", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Debug("Control server shutdown", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) handleCachedImage(c *gin.Context) {
	path, ok := s.art.Path(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not cached"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Channels())
}

func (s *Server) handleSelectChannel(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch err := s.ctrl.SelectChannel(req.ID); {
	case errors.Is(err, channels.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
	case errors.Is(err, channels.ErrOffline):
		c.JSON(http.StatusConflict, gin.H{"error": "channel offline"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) handleCampaigns(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Campaigns())
}

func (s *Server) handleConsole(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": s.console.Lines()})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Settings())
}

func (s *Server) handleSetSettings(c *gin.Context) {
	var patch model.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.ctrl.UpdateSettings(patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleOAuthConfirm(c *gin.Context) {
	s.ctrl.ConfirmOAuth()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleReload(c *gin.Context) {
	s.ctrl.Reload()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleClose(c *gin.Context) {
	s.ctrl.RequestExit()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleExitManual(c *gin.Context) {
	s.ctrl.ExitManualMode()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleVerifyProxy(c *gin.Context) {
	var req struct {
		Proxy string `json:"proxy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctrl.VerifyProxy(c.Request.Context(), req.Proxy); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Twitch Drops Miner</title></head>
<body style="font-family: monospace; background: #18181b; color: #efeff1">
<h2>Twitch Drops Miner</h2>
<p>REST API under <code>/api</code>, live events on <code>/ws</code>.</p>
</body>
</html>
`
