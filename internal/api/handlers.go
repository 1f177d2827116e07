package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/signifo/designgen/internal/auth/openrouter"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/generation"
	log "github.com/sirupsen/logrus"
)

// statusClientClosedRequest is reported when the caller goes away mid-generation.
const statusClientClosedRequest = 499

type generateRequest struct {
	System string `json:"system"`
	User   string `json:"user"`
	Model  string `json:"model"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object with system, user and model fields.")
		return
	}
	if strings.TrimSpace(req.System) == "" || strings.TrimSpace(req.User) == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "Both system and user prompts are required.")
		return
	}

	backend := s.current()
	credential := s.credential(c, backend)
	prompt := generation.Prompt{System: req.System, User: req.User}
	result, err := backend.Generator.Generate(c.Request.Context(), prompt, credential, req.Model)
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.Set("request_id", result.RequestID)
	c.JSON(http.StatusOK, gin.H{
		"request_id": result.RequestID,
		"strategy":   result.Strategy,
		"truncated":  result.Truncated,
		"filename":   result.Filename(),
		"document":   result.Value,
	})
}

func (s *Server) handleModels(c *gin.Context) {
	backend := s.current()
	models, err := backend.Models.ListModels(c.Request.Context(), s.credential(c, backend))
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models})
}

// credential prefers the caller's bearer token, then the configured or stored key.
func (s *Server) credential(c *gin.Context, backend *Backend) string {
	var bearer string
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			bearer = token
		}
	}
	authDir, err := backend.Config.ResolvedAuthDir()
	if err != nil {
		log.Warnf("api: resolve auth dir: %v", err)
		authDir = ""
	}
	return openrouter.ResolveCredential(bearer, backend.Config.APIKey, authDir)
}

func writeFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	status, kind := httpStatusFor(err)
	writeError(c, status, kind, failure.UserMessage(err))
}

func writeError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Kind: kind, Message: message}})
}

func httpStatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	f, ok := failure.As(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	switch f.Kind {
	case failure.ClientError:
		if f.Status >= http.StatusBadRequest && f.Status < http.StatusInternalServerError {
			return f.Status, f.Kind.String()
		}
		return http.StatusBadRequest, f.Kind.String()
	case failure.TransientError:
		return http.StatusBadGateway, f.Kind.String()
	case failure.UnparsableResponse:
		return http.StatusUnprocessableEntity, f.Kind.String()
	}
	return http.StatusInternalServerError, "internal_error"
}
