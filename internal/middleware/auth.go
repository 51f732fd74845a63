package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Authorization header details.
const (
	AuthHeaderKey  = "authorization"
	AuthTypeBearer = "bearer"
	AuthPayloadKey = "authorization_payload"
)

// Authorization errors.
var (
	ErrAuthHeaderNotFound  = errors.New("authorization header is not provided")
	ErrBadAuthHeaderFormat = errors.New("invalid authorization header format")
	ErrUnsupportedAuthType = errors.New("unsupported authorization type")
	ErrForbidden           = errors.New("access denied")
)

// AddAuthorization creates a token for the principal and sets the authorization header of r.
func AddAuthorization(
	r *http.Request,
	maker tokenpkg.Maker,
	authType string,
	username string,
	role string,
	duration time.Duration,
) error {
	token, _, err := maker.CreateToken(username, role, duration)
	if err != nil {
		return err
	}

	r.Header.Set(AuthHeaderKey, fmt.Sprintf("%s %s", authType, token))

	return nil
}

// AuthMiddleware verifies the bearer token and stores its payload under AuthPayloadKey.
func AuthMiddleware(maker tokenpkg.Maker) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		l := zerolog.Ctx(gctx.Request.Context())

		authHeader := gctx.GetHeader(AuthHeaderKey)
		if len(authHeader) == 0 {
			l.Info().Err(ErrAuthHeaderNotFound).Send()
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrAuthHeaderNotFound))

			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) != 2 {
			l.Info().Err(ErrBadAuthHeaderFormat).Send()
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrBadAuthHeaderFormat))

			return
		}

		if strings.ToLower(fields[0]) != AuthTypeBearer {
			l.Info().Err(ErrUnsupportedAuthType).Str("type", fields[0]).Send()
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrUnsupportedAuthType))

			return
		}

		payload, err := maker.VerifyToken(fields[1])
		if err != nil {
			l.Info().Err(err).Send()
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))

			return
		}

		logger := l.With().Str("username", payload.Username).Str("role", payload.Role).Logger()
		gctx.Request = gctx.Request.WithContext(logger.WithContext(gctx.Request.Context()))

		gctx.Set(AuthPayloadKey, payload)
		gctx.Next()
	}
}

// Principal returns the payload stored by AuthMiddleware.
func Principal(gctx *gin.Context) *tokenpkg.Payload {
	return gctx.MustGet(AuthPayloadKey).(*tokenpkg.Payload)
}

// RequireRole aborts requests of principals whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		payload := Principal(gctx)

		for _, role := range roles {
			if payload.Role == role {
				gctx.Next()
				return
			}
		}

		zerolog.Ctx(gctx.Request.Context()).Warn().Err(ErrForbidden).Send()
		gctx.AbortWithStatusJSON(http.StatusForbidden, web.Error(ErrForbidden))
	}
}
