package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	fileIDBytes       = 24 // 192 bits, 32 base64url chars
	downloadNameBytes = 8
	storedNameSuffix  = ".bin"
)

var (
	fileIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{32}$`)
	extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9_-]{1,16}$`)
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// newFileID returns a URL-safe token carrying 192 bits of randomness.
func newFileID() (string, error) {
	b, err := randomBytes(fileIDBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newDownloadName returns a random hex name that keeps only the extension
// of the uploaded file.
func newDownloadName(originalName string) (string, error) {
	b, err := randomBytes(downloadNameBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + extensionOf(originalName), nil
}

// storedName is the blob key for a file id. The suffix keeps it distinct
// from the id itself and from any download name.
func storedName(fileID string) string {
	return fileID + storedNameSuffix
}

// validFileID reports whether s could have been produced by newFileID.
func validFileID(s string) bool {
	return fileIDPattern.MatchString(s)
}

// extensionOf returns the final extension of a client supplied filename,
// or "" when there is none or it contains characters unsafe for headers.
// Dotfiles such as ".bashrc" have no extension.
func extensionOf(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return ""
	}
	ext := name[dot:]
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}
