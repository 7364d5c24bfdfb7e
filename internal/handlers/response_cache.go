package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache replays previously served responses for repeated POST
// requests carrying the same Idempotency-Key header. The request body is
// part of the cache key, so a reused key with a different payload falls
// through to the service, which rejects the reuse properly.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a cache backed by the given Redis client.
func NewResponseCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Middleware intercepts POST requests with an Idempotency-Key header.
// Responses below 500 are cached; server errors are transient and must
// not be replayed.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		idemKey := r.Header.Get("Idempotency-Key")
		if idemKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "Failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := cacheKey(r.Method, r.URL.Path, idemKey, body)

		stored, err := c.client.Get(r.Context(), key).Bytes()
		if err == nil {
			var cached cachedResponse
			if unmarshalErr := json.Unmarshal(stored, &cached); unmarshalErr == nil {
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(cached.Status)
				w.Write(cached.Body)
				return
			}
		} else if !errors.Is(err, redis.Nil) {
			// Redis being down must not block the ledger.
			c.logger.Warn("response cache lookup failed", "error", err)
		}

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)

		if capture.status >= http.StatusInternalServerError {
			return
		}

		entry, err := json.Marshal(cachedResponse{
			Status:      capture.status,
			ContentType: capture.Header().Get("Content-Type"),
			Body:        capture.buf.Bytes(),
		})
		if err != nil {
			c.logger.Warn("response cache encode failed", "error", err)
			return
		}
		if err := c.client.Set(r.Context(), key, entry, c.ttl).Err(); err != nil {
			c.logger.Warn("response cache store failed", "error", err)
		}
	})
}

// cacheKey hashes the body so two different payloads never share an entry.
func cacheKey(method, path, idemKey string, body []byte) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s", method, path, idemKey, body))
	return "ledger:response:" + hex.EncodeToString(sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}
