package service

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/liliang-cn/aidentify/internal/domain"
)

// RejectedFileMessage is shown when a file fails intake
const RejectedFileMessage = "Unsupported file. Only images, videos, MP3 & WAV allowed."

const octetStream = "application/octet-stream"

// Accepted extensions per MIME family
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

var mimeAliases = map[string]string{
	"audio/x-wav":    "audio/wav",
	"audio/wave":     "audio/wav",
	"audio/vnd.wave": "audio/wav",
	"audio/mp3":      "audio/mpeg",
	"audio/x-mpeg":   "audio/mpeg",
	"image/jpg":      "image/jpeg",
	"image/x-ms-bmp": "image/bmp",
}

// ResolveMediaType decides the MIME type of a file and checks it against the allow-list.
// The declared type wins unless it is missing or generic, then the content is sniffed,
// then the extension is consulted.
func ResolveMediaType(name, declared string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &domain.ValidationError{Name: name, MIMEType: declared, Reason: "empty file"}
	}

	mt := canonicalMIME(declared)
	if mt == "" || mt == octetStream {
		mt = canonicalMIME(mimetype.Detect(data).String())
	}
	if mt == "" || mt == octetStream {
		if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
			mt = byExt
		}
	}

	if !allowedMIME(mt) {
		return "", &domain.ValidationError{Name: name, MIMEType: mt, Reason: "type not in allow-list"}
	}
	return mt, nil
}

func canonicalMIME(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(v); err == nil {
		v = parsed
	}
	v = strings.ToLower(v)
	if alias, ok := mimeAliases[v]; ok {
		return alias
	}
	return v
}

func allowedMIME(mt string) bool {
	switch {
	case strings.HasPrefix(mt, "image/"), strings.HasPrefix(mt, "video/"):
		return true
	case mt == "audio/mpeg", mt == "audio/wav":
		return true
	default:
		return false
	}
}
