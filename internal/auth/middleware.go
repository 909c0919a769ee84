package auth

import (
	"errors"
	"fmt"
	"strings"

	"outreach-server/internal/apierrors"
	"outreach-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Middleware validates the HS256 bearer token on management API routes.
// Webhook routes are exempt; the telephony provider authenticates differently.
func Middleware(jwtSecret string, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token, err := bearerToken(c)
		if err != nil {
			apierrors.RespondWithError(c, apierrors.Unauthorized("Missing or malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := validateToken(jwtSecret, token)
		if err != nil {
			logger.Error(ctx, "rejected management API token", err)
			if errors.Is(err, ErrExpiredToken) {
				apierrors.RespondWithError(c, apierrors.Unauthorized("Token expired"))
			} else {
				apierrors.RespondWithError(c, apierrors.Unauthorized("Invalid token"))
			}
			c.Abort()
			return
		}

		if claims.Subject != "" {
			ctx = observability.WithFields(ctx, observability.Field{Key: "subject", Value: claims.Subject})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingToken
	}
	return parts[1], nil
}

func validateToken(jwtSecret, token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		// Check the signing method
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}
