package utils

import (
	"strings"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const claimsLocalKey = "claims"

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }

func GenerateJWTToken(user *models.UserProfile, cfg *config.Config) (string, error) {
	claims := Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Name:   user.FullName,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

func ParseJWTToken(tokenString string, cfg *config.Config) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}
	if claims.UserID == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid user ID in token")
	}
	return claims, nil
}

// ExtractClaimsFromToken reads the Authorization header, with or without the
// Bearer prefix, and validates it.
func ExtractClaimsFromToken(c *fiber.Ctx, cfg *config.Config) (*Claims, error) {
	tokenString := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Missing authorization token")
	}
	return ParseJWTToken(tokenString, cfg)
}

// SetClaims stores validated claims for downstream handlers.
func SetClaims(c *fiber.Ctx, claims *Claims) {
	c.Locals(claimsLocalKey, claims)
}

func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsLocalKey).(*Claims)
	return claims, ok && claims != nil
}
