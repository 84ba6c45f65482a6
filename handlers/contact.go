package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/middleware/ratelimit"
	"github.com/tech-arch1tect/portfolio/services/contact"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

type ContactHandler struct {
	contact *contact.Service
	logger  *logging.Service
}

func NewContactHandler(contactService *contact.Service, logger *logging.Service) *ContactHandler {
	return &ContactHandler{contact: contactService, logger: logger}
}

func (h *ContactHandler) Submit(c echo.Context) error {
	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	err := h.contact.Submit(c.Request().Context(), contact.Message(req), ratelimit.ClientIP(c))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, SuccessResponse{
			Success: true,
			Message: "Message sent successfully. I will get back to you soon.",
		})
	case errors.Is(err, contact.ErrMissingFields):
		return errorJSON(c, http.StatusBadRequest, "Please fill in all fields")
	case errors.Is(err, contact.ErrMissingCaptcha):
		return errorJSON(c, http.StatusBadRequest, "Please confirm you are not a robot")
	case errors.Is(err, contact.ErrCaptchaFailed):
		return errorJSON(c, http.StatusBadRequest, "Captcha verification failed, please try again")
	case errors.Is(err, contact.ErrInvalidEmail):
		return errorJSON(c, http.StatusBadRequest, "Invalid email format")
	default:
		if h.logger != nil {
			h.logger.Error("contact form submission failed", zap.Error(err))
		}
		return errorJSON(c, http.StatusInternalServerError, "Failed to send message, please try again or contact me directly")
	}
}
