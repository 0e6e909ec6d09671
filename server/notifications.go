package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/notifyflow/notifyflow/engine"
)

// getStep renders one wizard step. start=1 begins a fresh flow for the
// (session, task) slot, discarding any previous run of the same task.
func (s *Server) getStep(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}

	var state *engine.FlowState
	if c.Query("start") == "1" {
		state = engine.NewFlowState(req.def.ID)
		if !s.saveState(c, req, state) {
			return
		}
		s.Counter.FlowStarted()
		s.Log.InfoContext(c.Request.Context(), "flow started", "task", req.def.ID, "operator", req.operator.Email)
	} else {
		state, ok = s.loadState(c, req)
		if !ok {
			return
		}
	}

	step, _ := strconv.Atoi(c.DefaultQuery("step", "0"))
	view, err := s.Interpreter.RenderStep(c.Request.Context(), req.def, state, step)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// postStep validates and stores one step's answers. A validation failure
// re-renders the same step with field errors attached and leaves the slot
// untouched.
func (s *Server) postStep(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	step, _ := strconv.Atoi(c.DefaultQuery("step", "0"))
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form body"})
		return
	}

	nav, err := s.Interpreter.SubmitStep(req.def, state, step, c.Request.PostForm)
	if err != nil {
		var fe *engine.FlowError
		if errors.As(err, &fe) && fe.Kind == engine.KindValidation {
			view, rerr := s.Interpreter.RenderStep(c.Request.Context(), req.def, state, step)
			if rerr != nil {
				s.respondError(c, rerr)
				return
			}
			view.Errors = fe.Fields
			c.JSON(http.StatusUnprocessableEntity, view)
			return
		}
		s.respondError(c, err)
		return
	}

	if !s.saveState(c, req, state) {
		return
	}
	c.JSON(http.StatusOK, nav)
}

// getRefine resolves the candidate audience from the accumulated answers.
// Identifiers the operator asked for that matched nothing come back as
// informational messages alongside the matched set.
func (s *Server) getRefine(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	result, err := s.Resolver.Resolve(c.Request.Context(), req.def, state)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// postRefine records the operator's audience selection.
func (s *Server) postRefine(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	nav, err := engine.ConfirmSelection(req.def, state, c.PostFormArray("licenceNumbers"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !s.saveState(c, req, state) {
		return
	}
	c.JSON(http.StatusOK, nav)
}

func (s *Server) getVariables(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, engine.RenderVariables(req.def, state))
}

func (s *Server) postVariables(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form body"})
		return
	}
	nav, err := engine.SubmitVariables(req.def, state, c.Request.PostForm)
	if err != nil {
		var fe *engine.FlowError
		if errors.As(err, &fe) && fe.Kind == engine.KindValidation {
			view := engine.RenderVariables(req.def, state)
			view.Errors = fe.Fields
			c.JSON(http.StatusUnprocessableEntity, view)
			return
		}
		s.respondError(c, err)
		return
	}

	if !s.saveState(c, req, state) {
		return
	}
	c.JSON(http.StatusOK, nav)
}

// getPreview renders the messages without sending. Repeatable: no side
// effects, no state mutation.
func (s *Server) getPreview(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	result, err := s.Dispatcher.Preview(c.Request.Context(), req.def, state)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// postSend commits the dispatch under the operator's identity. The
// dispatcher clears the slot on success; on failure the slot survives so
// the operator can retry.
func (s *Server) postSend(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	state, ok := s.loadState(c, req)
	if !ok {
		return
	}

	result, err := s.Dispatcher.Commit(c.Request.Context(), req.def, state, req.sessionID, req.operator.Email)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// postAbandon explicitly ends an in-progress flow.
func (s *Server) postAbandon(c *gin.Context) {
	req, ok := s.begin(c)
	if !ok {
		return
	}
	if err := s.Store.Clear(c.Request.Context(), req.sessionID, req.def.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
