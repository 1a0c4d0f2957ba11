// Package site serves the embedded landing page.
package site

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrServe is returned when the landing page cannot be read.
var ErrServe = errors.New("site serve failed")

// Register attaches the landing page to GET / only. Unknown paths stay 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /{$}", NewRootHandler().HandleRoot)
}

// RootHandler serves the landing page.
type RootHandler struct {
	fs http.FileSystem
}

// NewRootHandler creates a root handler over the embedded files.
func NewRootHandler() *RootHandler {
	return &RootHandler{fs: FS()}
}

// HandleRoot writes index.html.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	f, err := h.fs.Open("index.html")
	if err != nil {
		http.Error(w, ErrServe.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.Copy(w, f)
}
