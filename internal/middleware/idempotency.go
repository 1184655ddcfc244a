package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Server errors are not stored so the client may retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing Idempotency-Key header"})
			return
		}
		cacheKey := idempotencyPrefix + c.FullPath() + ":" + key

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			if cached == inProgressMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request currently processing"})
				return
			}
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("Failed to decode stored idempotent response", slog.String("key", key), slog.Any("err", err))
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, stored.ContentType, []byte(stored.Body))
			c.Abort()
			return
		}
		if err != redis.Nil {
			logger.Error("Idempotency lookup failed", slog.String("key", key), slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency store failure"})
			return
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("Idempotency reservation failed", slog.String("key", key), slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency reservation failure"})
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request currently processing"})
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()

		if rec.Status() >= http.StatusInternalServerError {
			cache.Del(persistCtx, cacheKey)
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      rec.Status(),
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.String(),
		})
		if err != nil {
			logger.Error("Failed to encode idempotent response", slog.String("key", key), slog.Any("err", err))
			cache.Del(persistCtx, cacheKey)
			return
		}
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("Failed to persist idempotent response", slog.String("key", key), slog.Any("err", err))
			cache.Del(persistCtx, cacheKey)
		}
	}
}
