package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/factllm/internal/application/runs"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BatchRequest is the body of both the synchronous completions endpoint and
// run submission
type BatchRequest struct {
	Prompts    []string           `json:"prompts" binding:"required"`
	SystemRole string             `json:"system_role"`
	Options    domain.CallOptions `json:"options"`
}

// CompletionsResponse is the result of a synchronous batch
type CompletionsResponse struct {
	Provider string                    `json:"provider"`
	Model    string                    `json:"model"`
	Results  []domain.CompletionResult `json:"results"`
	Summary  domain.ResultSummary      `json:"summary"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	Prompts     int    `json:"prompts"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth reports limiter usage and worker pool health
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	usage, err := s.driver.Limiter().Usage(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to read limiter usage", zap.Error(err))
		status = http.StatusServiceUnavailable
		checks["rate_limiter"] = gin.H{"status": "error", "error": err.Error()}
	} else {
		checks["rate_limiter"] = gin.H{
			"status":   "ok",
			"used":     usage.Used,
			"capacity": usage.Capacity,
			"records":  usage.Records,
			"window":   usage.Window.String(),
		}
	}

	if s.pool != nil {
		pool := s.pool.Health().GetStatus()
		if !pool.Healthy {
			status = http.StatusServiceUnavailable
		}
		checks["workers"] = pool
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"provider":  s.driver.Client().Name(),
		"model":     s.driver.Client().Model(),
		"checks":    checks,
	})
}

// handleCompletions runs a batch synchronously and returns ordered results
func (s *Server) handleCompletions(c *gin.Context) {
	req, ok := s.bindBatch(c)
	if !ok {
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.writeError(c, err)
		return
	}

	results, err := s.driver.Submit(c.Request.Context(), req.Prompts, req.SystemRole, req.Options)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CompletionsResponse{
		Provider: s.driver.Client().Name(),
		Model:    s.driver.Client().Model(),
		Results:  results,
		Summary:  domain.Summarize(results),
	})
}

// handleSubmitRun handles asynchronous run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	req, ok := s.bindBatch(c)
	if !ok {
		return
	}

	run, err := s.manager.SubmitRun(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:       run.ID,
		Status:      string(run.Status),
		Prompts:     len(run.Prompts),
		SubmittedAt: run.SubmittedAt.Format(time.RFC3339),
	})
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	list, err := s.manager.ListRuns(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	summaries := make([]gin.H, 0, len(list))
	for _, run := range list {
		summaries = append(summaries, gin.H{
			"run_id":       run.ID,
			"status":       run.Status,
			"submitted_at": run.SubmittedAt,
			"completed_at": run.CompletedAt,
			"summary":      run.Summary(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  summaries,
		"total": len(summaries),
	})
}

// handleGetRun handles getting run details with its results
func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.manager.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"summary": run.Summary(),
	})
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	run, err := s.manager.CancelRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       run.ID,
		"status":       run.Status,
		"cancelled_at": run.CompletedAt,
	})
}

// bindBatch decodes the request body and fills configured defaults
func (s *Server) bindBatch(c *gin.Context) (runs.SubmitRequest, bool) {
	var body BatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return runs.SubmitRequest{}, false
	}

	if body.SystemRole == "" {
		body.SystemRole = s.defaults.SystemRole
	}
	if body.Options.Seed == nil {
		body.Options.Seed = s.defaults.Seed
	}

	return runs.SubmitRequest{
		Prompts:    body.Prompts,
		SystemRole: body.SystemRole,
		Options:    body.Options,
	}, true
}

// writeError maps an error to its status code and error body
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		status int
		code   string
	)

	switch {
	case errors.Is(err, ports.ErrRunNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, runs.ErrRunTerminal):
		status, code = http.StatusConflict, "CANCELLATION_FAILED"
	default:
		switch domain.KindOf(err) {
		case domain.ErrorKindValidation:
			status, code = http.StatusBadRequest, "VALIDATION_FAILED"
		case domain.ErrorKindConfig:
			status, code = http.StatusInternalServerError, "CONFIGURATION_ERROR"
		case domain.ErrorKindBackend:
			status, code = http.StatusBadGateway, "BACKEND_ERROR"
		case domain.ErrorKindCancelled:
			status, code = 499, "CANCELLED"
		default:
			status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
