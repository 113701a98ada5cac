package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// ItemResponse is the public JSON view of an item. The raw photo ref is
// never exposed; PhotoURL points at the fetch-photo route instead.
type ItemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *ItemsHandler) itemResponse(item *simpleinventory.Item) ItemResponse {
	resp := ItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if item.HasPhoto() {
		resp.PhotoURL = h.basePath + "/" + item.ID + "/photo"
	}
	return resp
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, simpleinventory.ErrValidation),
		errors.Is(err, simpleinventory.ErrNoFieldsProvided):
		return http.StatusBadRequest
	case errors.Is(err, simpleinventory.ErrNotFound),
		errors.Is(err, simpleinventory.ErrNoPhoto),
		errors.Is(err, simpleinventory.ErrAssetMissing):
		return http.StatusNotFound
	case errors.Is(err, simpleinventory.ErrDuplicateID):
		return http.StatusConflict
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// messageFor returns the client-facing message for err. Storage details stay
// in the logs.
func messageFor(status int, err error) string {
	switch {
	case errors.Is(err, simpleinventory.ErrNoFieldsProvided):
		return "no fields provided"
	case errors.Is(err, simpleinventory.ErrNoPhoto):
		return "item has no photo"
	case errors.Is(err, simpleinventory.ErrAssetMissing):
		return "photo file is missing"
	case errors.Is(err, simpleinventory.ErrNotFound):
		return "item not found"
	case status == http.StatusRequestEntityTooLarge:
		return "request body too large"
	case status == http.StatusInternalServerError:
		return "internal server error"
	}
	return err.Error()
}

func (h *ItemsHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, "status", status, "error", err, "request_id", RequestIDFromContext(r.Context()))

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: messageFor(status, err)})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
