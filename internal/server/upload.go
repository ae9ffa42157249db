package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"tmpshare/internal/lifecycle"
)

const (
	msgMissingField = "missing file field, use multipart key 'file'"
	msgEmptyFile    = "empty file"
)

// uploadResp is returned after a successful upload.
type uploadResp struct {
	Message          string `json:"message"`
	UploadedAt       string `json:"uploaded_at"`
	DownloadURL      string `json:"download_url"`
	DownloadFilename string `json:"download_filename"`
	ExpiresRule      string `json:"expires_rule"`
	CurlDownload     string `json:"curl_download"`
}

type errorResp struct {
	Error string `json:"error"`
}

// handleUpload streams the multipart part named "file" straight into the
// engine without buffering it in memory or on a temp form file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.sweep(r)
	rid := RequestIDFromContext(r.Context())

	if s.cfg.MaxUploadBytes > 0 {
		if r.ContentLength > s.cfg.MaxUploadBytes {
			uploadsTotal.WithLabelValues("too_large").Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Error: "file too large"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	part, err := findFilePart(r)
	if err != nil {
		if isTooLarge(err) {
			uploadsTotal.WithLabelValues("too_large").Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Error: "file too large"})
			return
		}
		uploadsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResp{Error: msgMissingField})
		return
	}
	defer func() { _ = part.Close() }()

	fileID, downloadName, err := s.engine.CreateUpload(r.Context(), part.FileName(), part)
	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrEmptyFile):
		uploadsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResp{Error: msgEmptyFile})
		return
	case errors.Is(err, lifecycle.ErrNoFileProvided):
		uploadsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResp{Error: msgMissingField})
		return
	case isTooLarge(err):
		uploadsTotal.WithLabelValues("too_large").Inc()
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Error: "file too large"})
		return
	default:
		uploadsTotal.WithLabelValues("error").Inc()
		logger.Errorw("upload_failed", "rid", rid, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "upload failed"})
		return
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	link := downloadURL(r, fileID, s.cfg.TrustProxy)
	writeJSON(w, http.StatusOK, uploadResp{
		Message:          "upload ok",
		UploadedAt:       time.Now().UTC().Format(time.RFC3339),
		DownloadURL:      link,
		DownloadFilename: downloadName,
		ExpiresRule: fmt.Sprintf("First successful download starts a %d-second expiry timer.",
			int64(s.engine.ExpireAfter()/time.Second)),
		CurlDownload: "curl -L " + shellQuote(link) + " -o " + shellQuote(downloadName),
	})
}

var errNoFilePart = errors.New("no file part")

// findFilePart advances the multipart stream to the first part named
// "file" that carries a filename parameter. A part without one is a plain
// form field, not an upload. A non-multipart body is treated as a missing
// field.
func findFilePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFilePart
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && hasFilenameParam(part) {
			return part, nil
		}
		_ = part.Close()
	}
}

// hasFilenameParam reports whether the part's Content-Disposition has a
// filename parameter, including an empty one.
func hasFilenameParam(p *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
