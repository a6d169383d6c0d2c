package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/identity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/storage"
)

const userLocal = "user_id"

// authenticate verifies the bearer token and puts the user id on both the
// Fiber locals and the request context.
func (s *Server) authenticate(c *fiber.Ctx) error {
	token, ok := identity.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return &common.AuthorizationError{Resource: "api", Err: common.ErrUnauthenticated}
	}
	claims, err := s.deps.Verifier.Verify(token)
	if err != nil {
		s.logger.Debug("rejected token", "path", c.Path(), "error", err)
		return &common.AuthorizationError{Resource: "api", Err: common.ErrUnauthenticated}
	}

	c.Locals(userLocal, claims.Subject)
	c.SetUserContext(identity.WithUser(c.UserContext(), claims.Subject))
	return c.Next()
}

// currentUser returns the authenticated user of the request.
func currentUser(c *fiber.Ctx) (string, error) {
	return identity.CurrentUser(c.UserContext())
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds())
	return err
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// handleError maps the error taxonomy to HTTP statuses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var validationErr *common.ValidationError
	var userErr *common.UserError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &validationErr):
		body.Field = validationErr.Field
	case errors.As(err, &userErr):
		body.Error = userErr.UserMessage
	case errors.As(err, &fiberErr):
		body.Error = fiberErr.Message
	}

	if status >= fiber.StatusInternalServerError {
		common.LogError(err, "request failed", common.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		})
		body.Error = "internal error"
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	var validationErr *common.ValidationError
	var authErr *common.AuthorizationError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.As(err, &authErr):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrDuplicateEntry), errors.Is(err, common.ErrInUse),
		errors.Is(err, service.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, storage.ErrInvalidCategory), errors.Is(err, storage.ErrInvalidRule),
		errors.Is(err, storage.ErrInvalidBusiness), errors.Is(err, storage.ErrInvalidBatch):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
