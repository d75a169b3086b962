package http

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursestats/internal/storage"
)

// MountUploads serves archived import files.
//
//	GET /imports/{name}  -> raw bytes of imports/{name}
func MountUploads(r chi.Router, archive storage.Archive) {
	r.Get("/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" || strings.ContainsAny(name, `/\`) {
			http.Error(w, "bad name", http.StatusBadRequest)
			return
		}
		rc, err := archive.Get(r.Context(), "imports/"+name)
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			http.Error(w, "bad name", http.StatusBadRequest)
			return
		case errors.Is(err, fs.ErrNotExist):
			http.Error(w, "not found", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "archive error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		ct := mime.TypeByExtension(path.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		_, _ = io.Copy(w, rc)
	})
}
