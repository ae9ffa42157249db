package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
)

const fallbackHomePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>tmpshare</title></head>
<body>
<h1>tmpshare</h1>
<p>Upload a file with <code>curl -F "file=@path/to/file" http://host/api/upload</code>.
The link expires shortly after its first download.</p>
</body>
</html>
`

// LoadHomePage reads the home page from path. A missing file yields the
// built-in page; any other read error is returned.
func LoadHomePage(path string) ([]byte, error) {
	if path == "" {
		return []byte(fallbackHomePage), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte(fallbackHomePage), nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.HomePage)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.cfg.HomePage)
}
