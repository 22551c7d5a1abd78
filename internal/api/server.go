package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cradleeye/internal/alert"
	"github.com/cradleeye/internal/auth"
	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/history"
	"github.com/cradleeye/internal/models"
	"github.com/cradleeye/internal/notify"
	"github.com/cradleeye/internal/quality"
)

// Server wires the REST surface over the core: detector event intake, alert
// reads and writes, telemetry intake, quality controls, and preferences.
type Server struct {
	manager    *alert.Manager
	dispatcher *notify.Dispatcher
	controller *quality.Controller
	store      *history.Store
	authSvc    *auth.Service
	logger     *zap.Logger
	router     *gin.Engine
}

func NewServer(manager *alert.Manager, dispatcher *notify.Dispatcher, controller *quality.Controller,
	store *history.Store, authSvc *auth.Service, logger *zap.Logger) *Server {

	gin.SetMode(gin.ReleaseMode)
	server := &Server{
		manager:    manager,
		dispatcher: dispatcher,
		controller: controller,
		store:      store,
		authSvc:    authSvc,
		logger:     logger,
		router:     gin.New(),
	}
	server.router.Use(gin.Recovery())
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.POST("/api/v1/auth/login", s.login)

	api := s.router.Group("/api/v1")
	api.Use(s.authSvc.Middleware())

	api.POST("/events", s.createAlert)
	api.GET("/alerts/active", s.listActiveAlerts)
	api.GET("/alerts/history", s.listAlertHistory)
	api.GET("/alerts/summary", s.alertSummary)
	api.GET("/alerts/:id", s.getAlert)
	api.PUT("/alerts/:id/acknowledge", auth.RequireRole(models.RoleAdmin, models.RoleUser), s.acknowledgeAlert)
	api.PUT("/alerts/:id/resolve", auth.RequireRole(models.RoleAdmin, models.RoleUser), s.resolveAlert)

	api.GET("/stats", s.getStats)
	api.GET("/manager/stats", s.getManagerStats)
	api.POST("/channels/:channel/test", auth.RequireRole(models.RoleAdmin), s.testChannel)

	api.GET("/preferences", s.getPreferences)
	api.PUT("/preferences", auth.RequireRole(models.RoleAdmin), s.updatePreferences)
	api.PUT("/config/alert-types/:type", auth.RequireRole(models.RoleAdmin), s.updateTypeConfig)

	clients := api.Group("/clients")
	{
		clients.POST("", s.registerClient)
		clients.DELETE("/:id", s.unregisterClient)
		clients.POST("/:id/samples", s.ingestSample)
		clients.GET("/:id/stats", s.getClientStats)
		clients.PUT("/:id/quality", auth.RequireRole(models.RoleAdmin, models.RoleUser), s.forceQuality)
	}
	api.GET("/quality/stats", s.getQualityStats)
}

func (s *Server) Start(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// statusFor translates the core error taxonomy to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrMisconfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrChannelDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := s.authSvc.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) createAlert(c *gin.Context) {
	var input alert.CreateAlertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.manager.CreateAlert(input)
	if err != nil {
		s.fail(c, err)
		return
	}
	if created == nil {
		c.JSON(http.StatusAccepted, gin.H{"suppressed": true})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listActiveAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.ActiveAlerts())
}

func (s *Server) getAlert(c *gin.Context) {
	a, err := s.manager.GetAlert(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) listAlertHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	alerts, err := s.store.Recent(limit,
		models.AlertType(c.Query("type")),
		models.AlertStatus(c.Query("status")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) alertSummary(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			hours = n
		}
	}
	summary, err := s.store.Summarize(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	a, err := s.manager.AcknowledgeAlert(c.Param("id"), c.GetString("username"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) resolveAlert(c *gin.Context) {
	a, err := s.manager.ResolveAlert(c.Param("id"), c.GetString("username"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.dispatcher.GetStats())
}

func (s *Server) getManagerStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats())
}

func (s *Server) testChannel(c *gin.Context) {
	channel := models.Channel(c.Param("channel"))
	prefs := s.manager.Preferences()
	result, err := s.dispatcher.TestChannel(channel, &prefs)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Preferences())
}

func (s *Server) updatePreferences(c *gin.Context) {
	var prefs models.UserPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.UpdatePreferences(prefs); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.manager.Preferences())
}

func (s *Server) updateTypeConfig(c *gin.Context) {
	var tc config.AlertTypeConfig
	if err := c.ShouldBindJSON(&tc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.UpdateTypeConfig(models.AlertType(c.Param("type")), tc); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert type updated"})
}

func (s *Server) registerClient(c *gin.Context) {
	var req struct {
		ClientID string `json:"client_id" binding:"required"`
		StreamID string `json:"stream_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.controller.Register(req.ClientID, req.StreamID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) unregisterClient(c *gin.Context) {
	if err := s.controller.Unregister(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) ingestSample(c *gin.Context) {
	var sample models.NetworkSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.controller.Ingest(c.Param("id"), sample); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) getClientStats(c *gin.Context) {
	state, samples, err := s.controller.ClientStats(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "network_history": samples})
}

func (s *Server) forceQuality(c *gin.Context) {
	var req struct {
		Quality models.QualityLevel `json:"quality" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.controller.ForceQuality(c.Param("id"), req.Quality); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getQualityStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Stats())
}
