package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/tech-arch1tect/portfolio/services/wishes"
	"go.uber.org/zap"
)

type WishesHandler struct {
	wishes *wishes.Service
	logger *logging.Service
}

func NewWishesHandler(wishesService *wishes.Service, logger *logging.Service) *WishesHandler {
	return &WishesHandler{wishes: wishesService, logger: logger}
}

func wishError(c echo.Context, status int, message string, err error) error {
	return c.JSON(status, WishErrorResponse{Success: false, Message: message, Error: err.Error()})
}

func (h *WishesHandler) List(c echo.Context) error {
	list, err := h.wishes.List(c.Request().Context(), wishes.MaxListSize)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to fetch wishes", zap.Error(err))
		}
		return c.JSON(http.StatusInternalServerError, WishErrorResponse{
			Success: false,
			Message: "Failed to fetch wishes",
			Error:   "Failed to fetch wishes",
		})
	}
	if list == nil {
		list = []wishes.Wish{}
	}
	return c.JSON(http.StatusOK, WishesResponse{Success: true, Wishes: list})
}

func (h *WishesHandler) Create(c echo.Context) error {
	var req WishRequest
	if err := c.Bind(&req); err != nil {
		return wishError(c, http.StatusBadRequest, "Invalid request body", err)
	}

	wish, err := h.wishes.Create(c.Request().Context(), req.Name, req.Message)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, WishCreatedResponse{
			Success: true,
			Message: "Thank you for sharing your wish!",
			Wish:    wish,
		})
	case errors.Is(err, wishes.ErrNameRequired), errors.Is(err, wishes.ErrMessageRequired):
		return wishError(c, http.StatusBadRequest, "Please enter a name and a message", err)
	case errors.Is(err, wishes.ErrNameTooLong):
		return wishError(c, http.StatusBadRequest, "Name is too long (100 characters max)", err)
	case errors.Is(err, wishes.ErrMessageTooLong):
		return wishError(c, http.StatusBadRequest, "Message is too long (500 characters max)", err)
	default:
		if h.logger != nil {
			h.logger.Error("failed to create wish", zap.Error(err))
		}
		return c.JSON(http.StatusInternalServerError, WishErrorResponse{
			Success: false,
			Message: "Something went wrong, please try again",
			Error:   "Internal server error",
		})
	}
}
