// Package api exposes the on-demand HTTP surface: a health endpoint and a
// bearer-authenticated /extract that regenerates narrative frames for one
// event or CTM bucket synchronously.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/database"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/narrative"
	"github.com/tessera-intel/tessera/pkg/store"
)

// maxErrorChars bounds every error body returned to callers.
const maxErrorChars = 300

// Extractor is the narrative surface the API drives.
type Extractor interface {
	FrameEvent(ctx context.Context, ef *models.EventFamily, titles []*models.Title) error
	FrameCTM(ctx context.Context, ctm *models.CTM, titles []*models.Title) error
}

// EventFamilySource loads Event Families.
type EventFamilySource interface {
	Get(ctx context.Context, id string) (*models.EventFamily, error)
}

// TitleSource loads member titles of an Event Family.
type TitleSource interface {
	MemberTitles(ctx context.Context, efID string, limit int) ([]*models.Title, error)
}

// CTMSource loads CTM buckets and records refreshes.
type CTMSource interface {
	Get(ctx context.Context, centroidID, track string, month time.Time) (*models.CTM, error)
	MemberTitles(ctx context.Context, ctm *models.CTM) ([]*models.Title, error)
	MarkNarrativeRefreshed(ctx context.Context, centroidID, track string, month time.Time, titleCount int) error
}

// FrameSource reads persisted frames.
type FrameSource interface {
	Frames(ctx context.Context, entityType models.NarrativeEntityType, entityID string) ([]models.NarrativeFrame, error)
}

// Server is the HTTP API.
type Server struct {
	cfg       config.APIConfig
	pool      *pgxpool.Pool
	titles    TitleSource
	efs       EventFamilySource
	ctms      CTMSource
	frames    FrameSource
	extractor Extractor
	logger    *slog.Logger
	engine    *gin.Engine
}

// NewServer wires the routes. The pool is only used by the health
// endpoint and may be nil in tests.
func NewServer(cfg config.APIConfig, pool *pgxpool.Pool, titles TitleSource,
	efs EventFamilySource, ctms CTMSource, frames FrameSource,
	extractor Extractor, logger *slog.Logger) *Server {

	if titles == nil || efs == nil || ctms == nil || frames == nil {
		panic("api.NewServer: stores must not be nil")
	}
	if extractor == nil {
		panic("api.NewServer: extractor must not be nil")
	}
	if logger == nil {
		panic("api.NewServer: logger must not be nil")
	}

	s := &Server{
		cfg:       cfg,
		pool:      pool,
		titles:    titles,
		efs:       efs,
		ctms:      ctms,
		frames:    frames,
		extractor: extractor,
		logger:    logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", s.health)
	engine.POST("/extract", s.authorize, s.extract)
	s.engine = engine
	return s
}

// Handler returns the http.Handler, for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("http api listening", "port", s.cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	status, err := database.Health(c.Request.Context(), s.pool)
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) authorize(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || s.cfg.AuthToken == "" || token != s.cfg.AuthToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
		return
	}
	c.Next()
}

type extractRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// extract synchronously regenerates frames for one entity and returns the
// fresh set.
func (s *Server) extract(c *gin.Context) {
	ctx := c.Request.Context()

	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if req.EntityID == "" {
		c.JSON(http.StatusBadRequest, errBody(errors.New("entity_id is required")))
		return
	}

	var (
		entityType models.NarrativeEntityType
		entityID   string
		err        error
	)
	switch req.EntityType {
	case string(models.NarrativeEntityEvent):
		entityType = models.NarrativeEntityEvent
		entityID = req.EntityID
		err = s.extractEvent(ctx, req.EntityID)
	case string(models.NarrativeEntityCTM):
		entityType = models.NarrativeEntityCTM
		entityID, err = s.extractCTM(ctx, req.EntityID)
	default:
		c.JSON(http.StatusBadRequest, errBody(
			fmt.Errorf("entity_type must be %q or %q", models.NarrativeEntityEvent, models.NarrativeEntityCTM)))
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errBody(fmt.Errorf("%s %s not found", req.EntityType, req.EntityID)))
		return
	case errors.Is(err, narrative.ErrInsufficientTitles):
		c.JSON(http.StatusUnprocessableEntity, errBody(err))
		return
	case errors.Is(err, errBadEntityID):
		c.JSON(http.StatusBadRequest, errBody(err))
		return
	default:
		s.logger.ErrorContext(ctx, "extraction failed",
			"entity_type", req.EntityType, "entity_id", req.EntityID, "error", err)
		c.JSON(http.StatusInternalServerError, errBody(err))
		return
	}

	frames, err := s.frames.Frames(ctx, entityType, entityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity_type": entityType,
		"entity_id":   entityID,
		"frames":      frames,
	})
}

func (s *Server) extractEvent(ctx context.Context, efID string) error {
	ef, err := s.efs.Get(ctx, efID)
	if err != nil {
		return err
	}
	titles, err := s.titles.MemberTitles(ctx, efID, 0)
	if err != nil {
		return err
	}
	return s.extractor.FrameEvent(ctx, ef, titles)
}

var errBadEntityID = errors.New("ctm entity_id must be centroid/track/YYYY-MM")

func (s *Server) extractCTM(ctx context.Context, entityID string) (string, error) {
	parts := strings.Split(entityID, "/")
	if len(parts) != 3 {
		return "", errBadEntityID
	}
	month, err := time.Parse("2006-01", parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: %s", errBadEntityID, parts[2])
	}

	ctm, err := s.ctms.Get(ctx, parts[0], parts[1], month)
	if err != nil {
		return "", err
	}
	titles, err := s.ctms.MemberTitles(ctx, ctm)
	if err != nil {
		return "", err
	}
	if err := s.extractor.FrameCTM(ctx, ctm, titles); err != nil {
		return "", err
	}
	if err := s.ctms.MarkNarrativeRefreshed(ctx, ctm.CentroidID, ctm.Track, ctm.Month, len(titles)); err != nil {
		return "", err
	}
	return entityID, nil
}

// errBody truncates the message so callers never receive an unbounded
// error payload.
func errBody(err error) gin.H {
	msg := err.Error()
	if len(msg) > maxErrorChars {
		msg = msg[:maxErrorChars]
	}
	return gin.H{"error": msg}
}
