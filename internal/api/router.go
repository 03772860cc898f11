package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/pkg/logging"
)

// HeadSource reports the last indexed block
type HeadSource interface {
	Head(ctx context.Context) (*models.Block, error)
}

// SchemaSource reports the applied migration version
type SchemaSource interface {
	SchemaVersion() (int64, error)
}

// HealthChecker is a dependency checked by the health endpoints
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterDeps are the collaborators of a Router
type RouterDeps struct {
	Blocks HeadSource
	Schema SchemaSource
	Checks map[string]HealthChecker
}

// Router sets up the status API routes
type Router struct {
	handler *JSONRPCHandler
	deps    RouterDeps
	now     func() time.Time
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps RouterDeps) *Router {
	router := &Router{
		handler: NewJSONRPCHandler(),
		deps:    deps,
		now:     time.Now,
		logger:  logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/", r.handler.Handle)
}

func (r *Router) registerMethods() {
	r.handler.RegisterMethod("hive.db_head_state", r.dbHeadState)
	if r.deps.Schema != nil {
		r.handler.RegisterMethod("hive.schema_version", r.schemaVersion)
	}
}

func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(r.deps.Checks))
	for name := range r.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := gin.H{}
	for _, name := range names {
		if err := r.deps.Checks[name].Health(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "OK"
	}

	body := gin.H{
		"status":     "OK",
		"service":    "hivemind-indexer",
		"components": components,
	}
	if status != http.StatusOK {
		body["status"] = "ERROR"
	}
	c.JSON(status, body)
}

// dbHeadState reports the last indexed block and how far it lags wall time
func (r *Router) dbHeadState(c *gin.Context, params json.RawMessage) (interface{}, error) {
	if err := requireNoParams(params); err != nil {
		return nil, err
	}

	head, err := r.deps.Blocks.Head(c.Request.Context())
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, NewError(ErrServerError, "no blocks indexed")
	}

	return gin.H{
		"db_head_block": head.Num,
		"db_head_time":  head.CreatedAt.UTC().Format("2006-01-02T15:04:05"),
		"db_head_age":   int64(r.now().Sub(head.CreatedAt).Seconds()),
	}, nil
}

func (r *Router) schemaVersion(c *gin.Context, params json.RawMessage) (interface{}, error) {
	if err := requireNoParams(params); err != nil {
		return nil, err
	}

	version, err := r.deps.Schema.SchemaVersion()
	if err != nil {
		return nil, err
	}
	return gin.H{"version": version}, nil
}

// requireNoParams accepts an absent, null, empty list or empty object params
func requireNoParams(params json.RawMessage) error {
	trimmed := bytes.TrimSpace(params)
	switch string(trimmed) {
	case "", "null", "[]", "{}":
		return nil
	}
	return NewError(ErrInvalidParams, "method takes no parameters")
}
