package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bnema/orator/internal/port"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(context.Canceled), context.Canceled)
	assert.NotErrorIs(t, Classify(context.Canceled), port.ErrEngineUnavailable)
	assert.ErrorIs(t, Classify(context.DeadlineExceeded), port.ErrEngineTimeout)
	assert.ErrorIs(t, Classify(timeoutErr{}), port.ErrEngineTimeout)
	assert.ErrorIs(t, Classify(errors.New("connection refused")), port.ErrEngineUnavailable)
}

func TestStatusError(t *testing.T) {
	resp := func(code int, body string) *http.Response {
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
	}

	err := StatusError(resp(404, `{"error":"model 'x' not found"}`))
	assert.ErrorIs(t, err, port.ErrModelNotFound)
	assert.ErrorContains(t, err, "not found")

	assert.ErrorIs(t, StatusError(resp(503, "busy")), port.ErrEngineUnavailable)

	err = StatusError(resp(400, "bad request"))
	assert.EqualError(t, err, "http 400: bad request")
	assert.Equal(t, "error", port.Outcome(err))
}
