package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/pkg/web"
)

// Idempotency header names.
const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
)

const (
	idempotencyPrefix       = "idempotency:v1:"
	idempotencyInProgress   = "__in_progress__"
	idempotencyStoreTimeout = 2 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
)

// Idempotency errors.
var (
	ErrIdempotencyInProgress  = errors.New("request with the same idempotency key is in progress")
	ErrIdempotencyUnavailable = errors.New("idempotency store is unavailable, retry later")
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request repeated with
// the same Idempotency-Key by the same principal.
//
// Requests without the header pass through. A duplicate that arrives while the
// first one is still running gets 409. Server errors are not stored so that
// the client may retry with the same key. It must run after AuthMiddleware.
func Idempotency(cache *redis.Client, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(gctx *gin.Context) {
		key := gctx.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			gctx.Next()
			return
		}

		l := zerolog.Ctx(gctx.Request.Context())

		cacheKey := idempotencyPrefix + Principal(gctx).Username + ":" +
			gctx.Request.Method + ":" + gctx.Request.URL.Path + ":" + key

		ctx, cancel := context.WithTimeout(gctx.Request.Context(), idempotencyStoreTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, idempotencyInProgress, ttl).Result()
		if err != nil {
			l.Error().Err(err).Str("idempotency_key", key).Msg("idempotency reservation failed")
			gctx.AbortWithStatusJSON(http.StatusServiceUnavailable, web.Error(ErrIdempotencyUnavailable))

			return
		}

		if !reserved {
			replay(gctx, cache, cacheKey, key)
			return
		}

		recorder := &bodyRecorder{ResponseWriter: gctx.Writer}
		gctx.Writer = recorder

		gctx.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
		defer persistCancel()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			release(persistCtx, l, cache, cacheKey, key)
			return
		}

		payload, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		})
		if err == nil {
			err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
		}

		if err != nil {
			l.Error().Err(err).Str("idempotency_key", key).Msg("idempotency persistence failed")
			release(persistCtx, l, cache, cacheKey, key)
		}
	}
}

// release drops the reservation so that the client may retry with the same key.
func release(ctx context.Context, l *zerolog.Logger, cache *redis.Client, cacheKey, key string) {
	if err := cache.Del(ctx, cacheKey).Err(); err != nil {
		l.Error().Err(err).Str("idempotency_key", key).Msg("idempotency cleanup failed")
	}
}

func replay(gctx *gin.Context, cache *redis.Client, cacheKey, key string) {
	l := zerolog.Ctx(gctx.Request.Context())

	ctx, cancel := context.WithTimeout(gctx.Request.Context(), idempotencyStoreTimeout)
	defer cancel()

	cached, err := cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) || cached == idempotencyInProgress {
		l.Info().Str("idempotency_key", key).Msg("duplicate request in progress")
		gctx.AbortWithStatusJSON(http.StatusConflict, web.Error(ErrIdempotencyInProgress))

		return
	}

	if err != nil {
		l.Error().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
		gctx.AbortWithStatusJSON(http.StatusServiceUnavailable, web.Error(ErrIdempotencyUnavailable))

		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		l.Error().Err(err).Str("idempotency_key", key).Msg("cannot decode stored response")
		gctx.AbortWithStatusJSON(http.StatusConflict, web.Error(ErrIdempotencyInProgress))

		return
	}

	l.Info().Str("idempotency_key", key).Msg("replaying stored response")

	gctx.Header(IdempotentReplayedHeader, "true")
	gctx.Data(stored.Status, stored.ContentType, stored.Body)
	gctx.Abort()
}
