package service

import (
	"testing"

	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		data     []byte
		want     string
		wantErr  bool
	}{
		{"declared image", "a.png", "image/png", []byte("x"), "image/png", false},
		{"declared with params", "a.jpg", "image/jpeg; charset=binary", []byte("x"), "image/jpeg", false},
		{"wav alias", "a.wav", "audio/x-wav", []byte("x"), "audio/wav", false},
		{"mp3 alias", "a.mp3", "audio/mp3", []byte("x"), "audio/mpeg", false},
		{"sniffed png", "upload", "", pngBytes, "image/png", false},
		{"octet stream falls back to extension", "clip.mov", "application/octet-stream", []byte{0x00, 0x01, 0x02}, "video/quicktime", false},
		{"pdf rejected", "doc.pdf", "application/pdf", []byte("%PDF-1.4"), "", true},
		{"other audio rejected", "a.flac", "audio/flac", []byte("fLaC"), "", true},
		{"text rejected", "notes", "", []byte("just some text"), "", true},
		{"empty rejected", "a.png", "image/png", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMediaType(tt.file, tt.declared, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
