package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/orator/internal/adapter/engine"
	"github.com/bnema/orator/internal/port"
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTP transcribes through an OpenAI compatible /v1/audio/transcriptions endpoint.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type transcriptionResponse struct {
	Text *string `json:"text"`
}

func (h *HTTP) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	// stream the upload instead of buffering whole recordings in memory
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, h.cfg.Model, filepath.Base(audioPath), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+"/v1/audio/transcriptions", pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", engine.Classify(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return "", engine.StatusError(resp)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Text == nil {
		return "", fmt.Errorf("%w: transcription response", port.ErrMalformedResponse)
	}
	return strings.TrimSpace(*out.Text), nil
}

func writeForm(mw *multipart.Writer, model, filename string, src io.Reader) error {
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, src); err != nil {
		return err
	}
	return mw.Close()
}

var _ port.Transcriber = (*HTTP)(nil)
