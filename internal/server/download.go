package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/go-chi/chi/v5"

	"tmpshare/internal/lifecycle"
)

// handleDownload serves GET /d/{fileID}. Unknown and expired links both
// redirect home so a client cannot tell them apart.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.sweep(r)
	rid := RequestIDFromContext(r.Context())
	fileID := chi.URLParam(r, "fileID")

	rec, err := s.engine.ResolveDownload(r.Context(), fileID)
	if err != nil {
		s.downloadFailed(w, r, rid, err)
		return
	}

	body, size, err := s.engine.Open(r.Context(), rec)
	if err != nil {
		s.downloadFailed(w, r, rid, err)
		return
	}
	defer func() { _ = body.Close() }()

	ctype := mime.TypeByExtension(path.Ext(rec.DownloadName))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", ctype)
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.DownloadName}))
	h.Set("Cache-Control", "no-store")
	if rec.ExpireAt != nil {
		h.Set("Expires", rec.ExpireAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	downloadsTotal.WithLabelValues("ok").Inc()
	if _, err := io.Copy(w, body); err != nil {
		logger.Warnw("download_interrupted", "rid", rid, "error", err.Error())
	}
}

func (s *Server) downloadFailed(w http.ResponseWriter, r *http.Request, rid string, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrExpired):
		downloadsTotal.WithLabelValues("expired").Inc()
		redirectHome(w, r)
	case errors.Is(err, lifecycle.ErrNotFound):
		downloadsTotal.WithLabelValues("not_found").Inc()
		redirectHome(w, r)
	default:
		downloadsTotal.WithLabelValues("error").Inc()
		logger.Errorw("download_failed", "rid", rid, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// sweep runs the opportunistic expiry sweep. Failures are logged only.
func (s *Server) sweep(r *http.Request) {
	if !s.cfg.SweepOnRequest {
		return
	}
	start := time.Now()
	n, err := s.engine.Sweep(r.Context())
	if err != nil {
		logger.Warnw("request_sweep_failed", "rid", RequestIDFromContext(r.Context()), "removed", n, "error", err.Error())
		return
	}
	if n > 0 {
		logger.Infow("request_sweep", "removed", n, "ms", time.Since(start).Milliseconds())
	}
}
