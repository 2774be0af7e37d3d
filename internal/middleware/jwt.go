package middleware

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/utils"
)

const identityLocal = "identity"

var (
	// ErrMissingToken is returned when no bearer credential was supplied.
	ErrMissingToken = errors.New("bearer token missing")
	// ErrInvalidToken is returned for tokens that fail verification or carry no user.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier resolves HS256 bearer tokens into identities.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify checks the signature and expiry of token and extracts the identity.
func (v *TokenVerifier) Verify(token string) (models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Identity{}, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}

	userID := extractUserIDFromClaims(claims)
	if userID == "" {
		return models.Identity{}, ErrInvalidToken
	}

	role := models.RoleUser
	if claimsGrantAdmin(claims) {
		role = models.RoleAdmin
	}

	return models.Identity{UserID: userID, Role: role}, nil
}

// BearerToken extracts the credential from the Authorization header or the token query parameter.
func BearerToken(c *fiber.Ctx) string {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	const bearer = "bearer "
	if len(authorization) > len(bearer) && strings.EqualFold(authorization[:len(bearer)], bearer) {
		return strings.TrimSpace(authorization[len(bearer):])
	}
	return strings.TrimSpace(c.Query("token"))
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
func JWTProtected(verifier *TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := verifier.Verify(BearerToken(c))
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
			}
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(identityLocal, identity)
		c.Locals("user_id", identity.UserID)
		c.Locals("user_role", string(identity.Role))

		return c.Next()
	}
}

// IdentityFromCtx returns the identity stored by JWTProtected.
func IdentityFromCtx(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(identityLocal).(models.Identity)
	if !ok || identity.IsZero() {
		return models.Identity{}, false
	}
	return identity, true
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id", "_id"} {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 0, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func claimsGrantAdmin(claims jwt.MapClaims) bool {
	for _, key := range []string{"role", "roles"} {
		if value, ok := claims[key]; ok && roleClaimHasAdmin(value) {
			return true
		}
	}
	for _, key := range []string{"is_admin", "isAdmin"} {
		if flag, ok := claims[key].(bool); ok && flag {
			return true
		}
	}
	return false
}

func roleClaimHasAdmin(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return models.ParseRole(v) == models.RoleAdmin
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && models.ParseRole(str) == models.RoleAdmin {
				return true
			}
		}
	}
	return false
}
