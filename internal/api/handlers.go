package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/services"
)

// RequestIDHeader carries the request id echoed on every response.
const RequestIDHeader = "X-Request-ID"

// SetupRoutes configures all Gin API routes and injects necessary dependencies
// Parameters:
//   - router: Gin engine instance to configure routes on
//   - analyticsService: dashboard and session detail logic
//   - trackingService: funnel event ingestion, nil when the backing store is read-only
func SetupRoutes(router *gin.Engine, analyticsService *services.AnalyticsService, trackingService *services.TrackingService) {
	router.Use(RequestIDMiddleware(), cors.Default())

	// Health Check Route - used for monitoring service availability
	router.GET("/health", HealthCheckHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		dashboards := api.Group("/analytics")
		dashboards.GET("/dashboard", DashboardHandler(analyticsService))
		dashboards.GET("/stats", StatsHandler(analyticsService))
		dashboards.GET("/sessions", ListSessionsHandler(analyticsService))
		dashboards.GET("/sessions/:id", GetSessionHandler(analyticsService))
		dashboards.GET("/sessions/:id/detail", SessionDetailHandler(analyticsService))
		dashboards.POST("/sessions/:id/toggle", ToggleSessionHandler(analyticsService))

		track := api.Group("/track")
		if trackingService != nil {
			track.POST("/sessions", StartSessionHandler(trackingService))
			track.POST("/events", TrackEventHandler(trackingService))
		} else {
			track.POST("/sessions", TrackingUnavailableHandler)
			track.POST("/events", TrackingUnavailableHandler)
		}
	}
}

// RequestIDMiddleware reuses the caller's X-Request-ID or generates a UUID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// HealthCheckHandler handles the /health route to verify service status
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindFilters reads the country and source query parameters.
func bindFilters(c *gin.Context) (analytics.Filters, bool) {
	var f analytics.Filters
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filters: " + err.Error()})
		return f, false
	}
	f.Country = strings.TrimSpace(f.Country)
	f.Source = strings.TrimSpace(f.Source)
	return f, true
}

// DashboardHandler returns the whole dashboard for the requested filters.
// A store failure still answers 200, with stale or zero-state data and an error field.
func DashboardHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, ok := bindFilters(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, svc.Dashboard(c.Request.Context(), filters))
	}
}

// StatsHandler returns only the summary tiles.
func StatsHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, ok := bindFilters(c)
		if !ok {
			return
		}
		d := svc.Dashboard(c.Request.Context(), filters)
		c.JSON(http.StatusOK, gin.H{
			"property": d.Property,
			"filters":  d.Filters,
			"stats":    d.Stats,
			"stale":    d.Stale,
			"error":    d.Error,
		})
	}
}

// ListSessionsHandler returns the session cards, most recent first.
func ListSessionsHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, ok := bindFilters(c)
		if !ok {
			return
		}
		d := svc.Dashboard(c.Request.Context(), filters)
		c.JSON(http.StatusOK, gin.H{
			"sessions": d.Sessions,
			"total":    len(d.Sessions),
			"stale":    d.Stale,
			"error":    d.Error,
		})
	}
}

// GetSessionHandler returns the card of one session.
func GetSessionHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		view, err := svc.Session(c.Request.Context(), id)
		if err != nil {
			respondError(c, id, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// SessionDetailHandler expands the card of one session and returns its detail.
// The detail is fetched once per session and memoized afterwards.
func SessionDetailHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		res, err := svc.Expand(c.Request.Context(), id)
		if err != nil {
			respondError(c, id, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ToggleSessionHandler applies one click on the card of a session.
func ToggleSessionHandler(svc *services.AnalyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		res, err := svc.Toggle(c.Request.Context(), id)
		if err != nil {
			respondError(c, id, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// StartSessionRequest represents the JSON request body sent by the funnel on first page load.
type StartSessionRequest struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Country   string `json:"country"`
	UserAgent string `json:"user_agent"`
}

// StartSessionHandler records a visitor session. Repeated calls with the same id are no-ops.
func StartSessionHandler(svc *services.TrackingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if req.UserAgent == "" {
			req.UserAgent = c.GetHeader("User-Agent")
		}

		session, created, err := svc.StartSession(c.Request.Context(), services.SessionInput{
			SessionID: req.SessionID,
			Source:    req.Source,
			UserAgent: req.UserAgent,
			Country:   req.Country,
			IPAddress: c.ClientIP(),
		})
		if errors.Is(err, customerrors.ErrReservedSessionID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logging.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Error starting session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{
			"session_id": session.SessionID,
			"country":    session.Country,
			"source":     session.Source,
			"device":     session.Device,
			"created":    created,
		})
	}
}

// TrackEventRequest represents one funnel event using the property's raw kind.
type TrackEventRequest struct {
	SessionID  string     `json:"session_id" binding:"required"`
	Kind       string     `json:"kind" binding:"required"`
	OccurredAt *time.Time `json:"occurred_at"`
	PageType   string     `json:"page_type"`
	PageID     string     `json:"page_id"`
	ContentID  string     `json:"content_id"`
	SearchID   string     `json:"search_id"`
	Title      string     `json:"title"`
	Payload    string     `json:"payload"`
}

// TrackEventHandler queues one funnel event for asynchronous persistence.
func TrackEventHandler(svc *services.TrackingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TrackEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		in := services.EventInput{
			SessionID: req.SessionID,
			Kind:      req.Kind,
			PageType:  req.PageType,
			PageID:    req.PageID,
			ContentID: req.ContentID,
			SearchID:  req.SearchID,
			Title:     req.Title,
			Payload:   req.Payload,
		}
		if req.OccurredAt != nil {
			in.OccurredAt = *req.OccurredAt
		}

		id, err := svc.Track(in)
		switch {
		case errors.Is(err, customerrors.ErrUnknownEventKind), errors.Is(err, customerrors.ErrReservedSessionID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, customerrors.ErrTrackingQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tracking is overloaded, event dropped"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to track event"})
		default:
			c.JSON(http.StatusAccepted, gin.H{"id": id})
		}
	}
}

// TrackingUnavailableHandler answers tracking calls on read-only backing stores.
func TrackingUnavailableHandler(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": customerrors.ErrTrackingUnavailable.Error()})
}

// respondError maps service errors of the session endpoints to HTTP statuses.
func respondError(c *gin.Context, sessionID string, err error) {
	var fetchErr customerrors.ErrFetchFailed
	switch {
	case errors.Is(err, customerrors.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.As(err, &fetchErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Analytics store unavailable", "source": fetchErr.Source})
	default:
		logging.Error().Err(err).
			Str("session_id", sessionID).
			Str("request_id", c.GetString("request_id")).
			Msg("Error handling session request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
