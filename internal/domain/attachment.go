package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Attachment is a file held in memory between staging and submission
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// NewAttachment wraps in-memory file bytes with a fresh local reference id
func NewAttachment(name, mimeType string, data []byte) *Attachment {
	return &Attachment{
		ID:       uuid.New().String(),
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}
}

// PreviewURI is the ephemeral local reference used to render the artifact before any round trip
func (a *Attachment) PreviewURI() string {
	return "local://" + a.ID + "/" + a.Name
}

// MediaType classifies the attachment by its MIME type
func (a *Attachment) MediaType() MediaType {
	return ClassifyMIME(a.MIMEType)
}

// ClassifyMIME maps a MIME type to its coarse media type.
// video/* and audio/* are recognised, everything else counts as an image.
func ClassifyMIME(mimeType string) MediaType {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "video/"):
		return MediaVideo
	case strings.HasPrefix(mt, "audio/"):
		return MediaAudio
	default:
		return MediaImage
	}
}
