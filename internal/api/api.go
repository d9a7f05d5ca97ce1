// Package api is the HTTP control surface of a running session.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/session"
)

const injectTimeout = 5 * time.Minute

// Controller is the part of *session.Session the API drives.
type Controller interface {
	Status() session.Status
	Inject(ctx context.Context, targetID database.RowID) (int, error)
	Stop(hard bool)
}

type Targets interface {
	GetTargetByName(name string, kind downloader.TargetKind) (*database.Target, error)
}

type Handler struct {
	controller Controller
	targets    Targets
	log        *zap.SugaredLogger
}

func NewHandler(controller Controller, targets Targets) *Handler {
	return &Handler{
		controller: controller,
		targets:    targets,
		log:        zap.S().Named("api"),
	}
}

func NewServer(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(h.logRequests, gin.Recovery())
	r.GET("/health", h.GetHealth)
	r.GET("/status", h.GetStatus)
	r.POST("/targets/:name/download", h.PostDownload)
	r.POST("/stop", h.PostStop)
	return r
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.log.Debugw("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency", time.Since(start),
		"client", c.ClientIP(),
	)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// PostDownload injects an existing target into the running session. The kind query parameter defaults to user.
func (h *Handler) PostDownload(c *gin.Context) {
	name := c.Param("name")
	kind := downloader.TargetKind(c.DefaultQuery("kind", string(downloader.TargetKindUser)))
	switch kind {
	case downloader.TargetKindUser, downloader.TargetKindSubreddit, downloader.TargetKindFeed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown target kind " + strconv.Quote(string(kind))})
		return
	}

	target, err := h.targets.GetTargetByName(name, kind)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such target"})
		return
	} else if err != nil {
		h.log.Errorw("failed to look up target", "name", name, "kind", kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), injectTimeout)
	defer cancel()
	queued, err := h.controller.Inject(ctx, target.ID)
	switch {
	case errors.Is(err, session.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not running"})
	case err != nil:
		h.log.Warnw("failed to inject target", "target", target.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": downloader.Describe(err)})
	default:
		h.log.Infow("target injected", "target", target.String(), "queued", queued)
		c.JSON(http.StatusOK, gin.H{"target": target.String(), "queued": queued})
	}
}

func (h *Handler) PostStop(c *gin.Context) {
	hard, err := strconv.ParseBool(c.DefaultQuery("hard", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hard must be a boolean"})
		return
	}
	h.controller.Stop(hard)
	c.JSON(http.StatusAccepted, gin.H{"stopping": true, "hard": hard})
}

// Serve runs the server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
