package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// DefaultBasePath is where the items routes are mounted by NewServer
const DefaultBasePath = "/api/v1/items"

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 1 << 20

// ItemsHandler serves the inventory item endpoints
type ItemsHandler struct {
	service  simpleinventory.Service
	logger   *slog.Logger
	basePath string
}

// NewItemsHandler creates a handler. basePath is used to build photo URLs
// and defaults to DefaultBasePath.
func NewItemsHandler(service simpleinventory.Service, logger *slog.Logger, basePath string) *ItemsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &ItemsHandler{
		service:  service,
		logger:   logger,
		basePath: strings.TrimRight(basePath, "/"),
	}
}

// Routes returns the router for item endpoints
func (h *ItemsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(MethodNotAllowed)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Post("/", h.Register)
	r.Get("/", h.List)
	r.Get("/search", h.Search)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.UpdateFields)
	r.Put("/{id}", h.UpdateFields)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/photo", h.FetchPhoto)
	r.Put("/{id}/photo", h.ReplacePhoto)
	return r
}

// MethodNotAllowed answers every request that matches no route
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// RegisterRequest is the JSON body accepted by Register
type RegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateFieldsRequest is the JSON body accepted by UpdateFields
type UpdateFieldsRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Register creates an item from a multipart form (with an optional "photo"
// file), a JSON body or a url-encoded form.
func (h *ItemsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req simpleinventory.RegisterRequest

	switch mediaType(r) {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			h.writeError(w, r, "Failed to parse multipart form", badRequest(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		req.Name = r.FormValue("name")
		req.Description = r.FormValue("description")

		file, header, err := formFile(r, "photo")
		if err != nil {
			h.writeError(w, r, "Failed to read photo", err)
			return
		}
		if file != nil {
			defer file.Close()
			req.Photo = file
			req.PhotoExt = filepath.Ext(header.Filename)
		}

	case "application/json":
		var body RegisterRequest
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			h.writeError(w, r, "Failed to decode request", badRequest(err))
			return
		}
		req.Name = body.Name
		req.Description = body.Description

	default:
		if err := r.ParseForm(); err != nil {
			h.writeError(w, r, "Failed to parse form", badRequest(err))
			return
		}
		req.Name = r.PostForm.Get("name")
		req.Description = r.PostForm.Get("description")
	}

	item, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "Failed to register item", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Item registered", "item_id", item.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, h.itemResponse(item))
}

// List returns every item
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, r, "Failed to list items", err)
		return
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, h.itemResponse(item))
	}
	render.JSON(w, r, resp)
}

// Get returns one item
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "Failed to get item", err)
		return
	}
	render.JSON(w, r, h.itemResponse(item))
}

// UpdateFields changes an item's name and/or description
func (h *ItemsHandler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch simpleinventory.FieldPatch
	switch mediaType(r) {
	case "application/json":
		var body UpdateFieldsRequest
		if err := render.DecodeJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, r, "Failed to decode request", badRequest(err))
			return
		}
		patch = simpleinventory.FieldPatch{Name: body.Name, Description: body.Description}

	default:
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			h.writeError(w, r, "Failed to parse form", badRequest(err))
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if values, ok := r.Form["name"]; ok && len(values) > 0 {
			patch.Name = &values[0]
		}
		if values, ok := r.Form["description"]; ok && len(values) > 0 {
			patch.Description = &values[0]
		}
	}

	item, err := h.service.UpdateFields(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, "Failed to update item", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Item updated", "item_id", id)
	render.JSON(w, r, h.itemResponse(item))
}

// ReplacePhoto stores the uploaded "photo" file and swaps it in
func (h *ItemsHandler) ReplacePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, "Failed to parse multipart form", badRequest(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r, "photo")
	if err != nil {
		h.writeError(w, r, "Failed to read photo", err)
		return
	}
	if file == nil {
		h.writeError(w, r, "Photo missing from request", simpleinventory.NewValidationError("photo file is required"))
		return
	}
	defer file.Close()

	item, err := h.service.ReplacePhoto(r.Context(), id, file, filepath.Ext(header.Filename))
	if err != nil {
		h.writeError(w, r, "Failed to replace photo", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Item photo replaced", "item_id", id)
	render.JSON(w, r, h.itemResponse(item))
}

// Delete removes an item and returns it
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "Failed to delete item", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Item deleted", "item_id", id)
	render.JSON(w, r, h.itemResponse(item))
}

// FetchPhoto streams the item's photo bytes
func (h *ItemsHandler) FetchPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	asset, rc, err := h.service.OpenPhoto(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "Failed to fetch photo", err)
		return
	}
	defer rc.Close()

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if asset.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "Photo stream interrupted", "item_id", id, "error", err)
	}
}

// Search returns the reduced view of one item.
// Query: id (required), include_photo (optional bool).
func (h *ItemsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := simpleinventory.SearchRequest{ID: query.Get("id")}
	if raw := query.Get("include_photo"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, "Invalid include_photo", simpleinventory.NewValidationError("include_photo must be a boolean"))
			return
		}
		req.IncludePhoto = include
	}

	summary, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "Failed to search item", err)
		return
	}
	render.JSON(w, r, summary)
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// formFile returns the named file part, or nil when the form has none
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, badRequest(err)
	}
	return file, header, nil
}

// badRequest marks a malformed body as a validation failure unless the body
// was cut off by the size limit.
func badRequest(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return simpleinventory.NewValidationError("%v", err)
}
