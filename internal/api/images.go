package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/storage"
)

const (
	imageDir       = "img"
	maxUploadBytes = 50 << 20 // 50 MB
)

// ImageHandler accepts image uploads into the vault.
type ImageHandler struct {
	store storage.Provider
}

// NewImageHandler creates a handler writing through the vault storage.
func NewImageHandler(store storage.Provider) *ImageHandler {
	return &ImageHandler{store: store}
}

// safeName validates that the filename is a plain image name (no path
// separators, no traversal) and returns the vault-relative save path.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !storage.IsImagePath(cleaned) {
		return "", fmt.Errorf("unsupported image extension: %s", filepath.Ext(cleaned))
	}
	return imageDir + "/" + cleaned, nil
}

// Upload handles POST /api/images (multipart/form-data, field "file").
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	dest, err := safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if h.store.Exists(dest) {
		writeJSON(w, http.StatusConflict, errorBody("image already exists: "+dest))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read upload"))
		return
	}
	if err := h.store.Write(dest, data); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to save image"))
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Path: dest, Size: int64(len(data))})
}
