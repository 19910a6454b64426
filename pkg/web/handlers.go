package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-converse/pkg/orchestrator"
	"github.com/teslashibe/go-converse/pkg/voice"
)

// DraftRequest is the body of PUT /api/draft
type DraftRequest struct {
	Text string `json:"text"`
}

// SubmitRequest is the optional body of POST /api/submit. Without text
// the current draft is sent.
type SubmitRequest struct {
	Text *string `json:"text"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	snap := s.conv.Snapshot()
	return c.JSON(fiber.Map{
		"status":          "ok",
		"version":         s.version,
		"state":           snap.State,
		"messages":        len(snap.Messages),
		"voice_available": snap.VoiceAvailable,
		"clients":         s.hub.ClientCount(),
	})
}

// handleState returns the current snapshot
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.conv.Snapshot())
}

// handleMessages returns the conversation
func (s *Server) handleMessages(c *fiber.Ctx) error {
	return c.JSON(s.conv.Messages())
}

// handleDraft replaces the draft
func (s *Server) handleDraft(c *fiber.Ctx) error {
	var req DraftRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.conv.UpdateDraft(req.Text); err != nil {
		return err
	}
	return c.JSON(s.conv.Snapshot())
}

// handleSubmit sends the draft, or the text in the body when present
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req SubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}

	var err error
	if req.Text != nil {
		err = s.conv.Submit(*req.Text)
	} else {
		err = s.conv.SubmitDraft()
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.conv.Snapshot())
}

// handleToggleVoice starts or stops voice capture
func (s *Server) handleToggleVoice(c *fiber.Ctx) error {
	if err := s.conv.ToggleVoice(); err != nil {
		return err
	}
	return c.JSON(s.conv.Snapshot())
}

// handleVoiceMetrics returns voice session metrics
func (s *Server) handleVoiceMetrics(c *fiber.Ctx) error {
	if s.voiceMetrics == nil {
		return fiber.NewError(fiber.StatusNotFound, "voice metrics not configured")
	}
	return c.JSON(s.voiceMetrics())
}

// handleError maps orchestrator errors to status codes
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal"

	var fe *fiber.Error
	var ve *voice.Error
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		status, code = fiber.StatusConflict, "busy"
	case errors.Is(err, orchestrator.ErrListening):
		status, code = fiber.StatusConflict, "listening"
	case errors.Is(err, orchestrator.ErrEmptyDraft):
		status, code = fiber.StatusUnprocessableEntity, "empty_draft"
	case errors.Is(err, orchestrator.ErrClosed):
		status, code = fiber.StatusServiceUnavailable, "closed"
	case errors.As(err, &ve):
		status, code = fiber.StatusServiceUnavailable, ve.Kind.String()
		return c.Status(status).JSON(fiber.Map{"error": ve.Describe(), "code": code})
	case errors.As(err, &fe):
		status, code = fe.Code, "request"
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}
