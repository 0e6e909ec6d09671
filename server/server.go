// Package server exposes the notification wizard over HTTP. Handlers are
// thin: extract identity, load the task definition, re-check access, load
// flow state, delegate to the engine, store state back, respond with the
// engine's view models as JSON. Authentication, session cookies and CSRF
// are owned by the fronting layer, which passes the resolved identity in
// request headers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/notifyflow/notifyflow/engine"
	"github.com/notifyflow/notifyflow/session"
)

// DefinitionSource loads task definitions, one fetch per request.
type DefinitionSource interface {
	GetTaskDefinition(ctx context.Context, id int) (*engine.TaskDefinition, error)
}

// FlowCounter records flow starts. Implemented by the metrics package.
type FlowCounter interface {
	FlowStarted()
}

// Headers the fronting auth layer supplies on every request.
const (
	headerSessionID   = "X-Session-ID"
	headerOperator    = "X-Operator-Email"
	headerPermissions = "X-Operator-Permissions"
)

type Server struct {
	Definitions DefinitionSource
	Store       session.Store
	Interpreter *engine.Interpreter
	Resolver    *engine.Resolver
	Dispatcher  *engine.Dispatcher
	Counter     FlowCounter
	Log         *slog.Logger
}

func New(definitions DefinitionSource, store session.Store, interp *engine.Interpreter, resolver *engine.Resolver, dispatcher *engine.Dispatcher, counter FlowCounter, log *slog.Logger) *Server {
	return &Server{
		Definitions: definitions,
		Store:       store,
		Interpreter: interp,
		Resolver:    resolver,
		Dispatcher:  dispatcher,
		Counter:     counter,
		Log:         log,
	}
}

// Routes registers the wizard endpoints.
func (s *Server) Routes(g *gin.Engine) {
	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	n := g.Group("/notifications")
	n.GET("/:id", s.getStep)
	n.POST("/:id", s.postStep)
	n.GET("/:id/refine", s.getRefine)
	n.POST("/:id/refine", s.postRefine)
	n.GET("/:id/data", s.getVariables)
	n.POST("/:id/data", s.postVariables)
	n.GET("/:id/preview", s.getPreview)
	n.POST("/:id/send", s.postSend)
	n.POST("/:id/abandon", s.postAbandon)
}

// flowRequest is the per-request prologue every handler shares: resolved
// identity, loaded definition, and the access check already passed.
type flowRequest struct {
	sessionID string
	operator  engine.Operator
	def       *engine.TaskDefinition
}

// begin runs the shared prologue. On failure it writes the error response
// and returns ok=false. Access is checked here on every request, never
// cached, so mid-flow permission changes take effect immediately.
func (s *Server) begin(c *gin.Context) (flowRequest, bool) {
	sessionID := c.GetHeader(headerSessionID)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session identity"})
		return flowRequest{}, false
	}

	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid task id"})
		return flowRequest{}, false
	}

	operator := engine.Operator{
		Email:       c.GetHeader(headerOperator),
		Permissions: make(map[string]bool),
	}
	for _, p := range strings.Split(c.GetHeader(headerPermissions), ",") {
		if p = strings.TrimSpace(p); p != "" {
			operator.Permissions[p] = true
		}
	}

	def, err := s.Definitions.GetTaskDefinition(c.Request.Context(), taskID)
	if err != nil {
		s.respondError(c, err)
		return flowRequest{}, false
	}
	if err := engine.CheckAccess(operator, def); err != nil {
		s.respondError(c, err)
		return flowRequest{}, false
	}

	return flowRequest{sessionID: sessionID, operator: operator, def: def}, true
}

// loadState fetches the flow-state slot, converting absence into
// ErrFlowNotStarted.
func (s *Server) loadState(c *gin.Context, req flowRequest) (*engine.FlowState, bool) {
	state, err := s.Store.Get(c.Request.Context(), req.sessionID, req.def.ID)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	if state == nil {
		s.respondError(c, engine.ErrFlowNotStarted)
		return nil, false
	}
	return state, true
}

func (s *Server) saveState(c *gin.Context, req flowRequest, state *engine.FlowState) bool {
	if err := s.Store.Put(c.Request.Context(), req.sessionID, req.def.ID, state); err != nil {
		s.respondError(c, err)
		return false
	}
	return true
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := engine.KindOf(err)
	status := statusFor(kind)

	log := s.Log.With("method", c.Request.Method, "path", c.Request.URL.Path, "kind", string(kind))
	if status >= http.StatusInternalServerError {
		// Internal details stay out of the response body.
		log.Error("request failed", "error", err)
		c.JSON(status, gin.H{"error": gin.H{"kind": kind, "message": "request could not be processed"}})
		return
	}
	log.Info("request rejected", "error", err)

	body := gin.H{"kind": kind, "message": "request could not be processed"}
	var fe *engine.FlowError
	if errors.As(err, &fe) {
		body["message"] = fe.Message
		if len(fe.Fields) > 0 {
			body["fields"] = fe.Fields
		}
	}
	c.JSON(status, gin.H{"error": body})
}

func statusFor(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindValidation, engine.KindNoSelection:
		return http.StatusUnprocessableEntity
	case engine.KindAccessDenied:
		return http.StatusForbidden
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
