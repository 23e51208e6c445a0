package http

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/bnema/orator/internal/adapter/http/ratelimit"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/service"
)

type TokenVerifier interface {
	Enabled() bool
	Verify(token string) error
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequireToken guards a mutating route with the configured API token. Clients
// that keep failing are locked out for a while.
func RequireToken(auth TokenVerifier, limiter *ratelimit.FailureLimiter, log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.Enabled() {
			next(w, r)
			return
		}

		client := clientIP(r)
		if blocked, remaining := limiter.Blocked(client); blocked {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "Too many failed attempts")
			return
		}

		if err := auth.Verify(bearerToken(r)); err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				limiter.Failure(client)
				log.WithRequest(r).Warn("rejected invalid API token")
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="orator"`)
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		limiter.Reset(client)
		next(w, r)
	}
}
