// Package engine holds helpers shared by the speech and text engine adapters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bnema/orator/internal/port"
)

// Classify maps a transport failure onto the engine failure classes.
// Cancellation is returned untouched so callers can tell a deleted job from a dead engine.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", port.ErrEngineTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", port.ErrEngineTimeout, err)
	}
	return fmt.Errorf("%w: %w", port.ErrEngineUnavailable, err)
}

// StatusError describes a non-2xx reply, keeping a short excerpt of the body.
func StatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", port.ErrModelNotFound, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", port.ErrEngineUnavailable, msg)
	default:
		return errors.New(msg)
	}
}
