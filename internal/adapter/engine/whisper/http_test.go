package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/orator/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake audio"), 0600))
	return path
}

func TestHTTP_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "talk.mp3", hdr.Filename)
		assert.Equal(t, "ID3 fake audio", string(body))

		_, _ = w.Write([]byte(`{"text":" Hello world. "}`))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "whisper-1", Timeout: time.Minute})

	text, err := h.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", text)
}

func TestHTTP_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream", wantErr: port.ErrEngineUnavailable},
		{name: "malformed", status: http.StatusOK, body: `{"txt":"x"}`, wantErr: port.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			h := NewHTTP(HTTPConfig{BaseURL: srv.URL, Model: "whisper-1", Timeout: time.Minute})
			_, err := h.Transcribe(context.Background(), writeAudio(t))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		h := NewHTTP(HTTPConfig{BaseURL: "http://127.0.0.1:1", Model: "whisper-1", Timeout: time.Second})
		_, err := h.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
