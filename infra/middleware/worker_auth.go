package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TokenBlacklist holds revoked-token jtis so a logged-out or rotated
// token stops authenticating before its exp, grounded on the teacher's
// Redis-backed revocation list.
type TokenBlacklist struct {
	redis  *redis.Client
	prefix string
}

var tokenBlacklist *TokenBlacklist

func InitTokenBlacklist(redisClient *redis.Client) {
	if redisClient == nil {
		log.Warn().Msg("redis client not provided, token blacklist disabled")
		return
	}
	tokenBlacklist = &TokenBlacklist{redis: redisClient, prefix: "token:blacklist:"}
}

func RevokeToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if tokenBlacklist == nil {
		return nil
	}
	return tokenBlacklist.redis.Set(ctx, tokenBlacklist.prefix+tokenID, "1", expiry).Err()
}

func IsTokenRevoked(ctx context.Context, tokenID string) bool {
	if tokenBlacklist == nil {
		return false
	}
	n, _ := tokenBlacklist.redis.Exists(ctx, tokenBlacklist.prefix+tokenID).Result()
	return n > 0
}

// JWTAuth validates an HS256 bearer token and populates user_id in
// fiber.Locals. CORS-preflight (OPTIONS) requests bypass auth.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		var tokenString string
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("jwt secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid claims"})
		}

		if jti, ok := claims["jti"].(string); ok && jti != "" && IsTokenRevoked(c.Context(), jti) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "token has been revoked", "code": "TOKEN_REVOKED"})
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user id in token"})
		}

		c.Locals("user_id", userID)
		if jti, ok := claims["jti"].(string); ok {
			c.Locals("jti", jti)
		}
		return c.Next()
	}
}
