package server

import (
	"net/http"
	"strings"
)

const defaultHost = "localhost:8080"

// requestOrigin builds scheme://host for links handed back to clients.
// X-Forwarded-Proto and X-Forwarded-Host are only honoured behind a
// trusted proxy; a host that is not a plain hostname or ip falls back to
// defaultHost.
func requestOrigin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if trustProxy {
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			first, _, _ := strings.Cut(p, ",")
			if first = strings.ToLower(strings.TrimSpace(first)); first == "http" || first == "https" {
				scheme = first
			}
		}
		if h := r.Header.Get("X-Forwarded-Host"); h != "" {
			first, _, _ := strings.Cut(h, ",")
			host = strings.TrimSpace(first)
		}
	}

	if !validHost(host) {
		host = defaultHost
	}
	return scheme + "://" + host
}

// validHost accepts host, host:port and bracketed ipv6 literals.
func validHost(h string) bool {
	if h == "" || len(h) > 255 {
		return false
	}
	for _, c := range h {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_', c == ':', c == '[', c == ']':
		default:
			return false
		}
	}
	return true
}

func downloadURL(r *http.Request, fileID string, trustProxy bool) string {
	return requestOrigin(r, trustProxy) + "/d/" + fileID
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
