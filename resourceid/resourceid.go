// Package resourceid derives stable identifiers and suggested file names
// for cached resources.
package resourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// Length is the number of hex characters an identifier is truncated to.
const Length = 16

// For computes the stable identifier for an origin URL: the first
// Length hex characters of its SHA-256 digest. Generalizes the
// teacher's full-digest file identity (factory.go's sha256.Sum256(u))
// to the 16-character form spec.md requires.
func For(originURL string) string {
	sum := sha256.Sum256([]byte(originURL))
	return hex.EncodeToString(sum[:])[:Length]
}

// SuggestedName picks a file name for a resource using fileName (from
// Content-Disposition) if set, else the URL's path tail, else a name
// derived from id and mimeType.
func SuggestedName(id, fileName, originURL, mimeType string) string {
	if fileName != "" {
		return fileName
	}
	if name := tailOf(originURL); name != "" {
		return name
	}
	return id + mimeExtension(mimeType)
}

// Extension derives a file extension with precedence fileName >
// originURL > mimeType, matching spec.md §3's extension precedence,
// falling back to ".mp4" to match spec.md §6's default Content-Type.
func Extension(fileName, originURL, mimeType string) string {
	if ext := path.Ext(fileName); ext != "" {
		return ext
	}
	if tail := tailOf(originURL); tail != "" {
		if ext := path.Ext(tail); ext != "" {
			return ext
		}
	}
	return mimeExtension(mimeType)
}

func mimeExtension(mimeType string) string {
	switch mimeType {
	case "video/webm":
		return ".webm"
	case "video/x-flv":
		return ".flv"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/zip":
		return ".zip"
	case "application/x-rar-compressed":
		return ".rar"
	case "application/pdf":
		return ".pdf"
	case "video/mp4", "":
		return ".mp4"
	default:
		return ".mp4"
	}
}

func tailOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	tail := path.Base(u.Path)
	if tail == "" || tail == "." || tail == "/" {
		return ""
	}
	return strings.TrimSpace(tail)
}
