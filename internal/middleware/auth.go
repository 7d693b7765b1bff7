package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

// Echo context keys carrying the caller identity.
const (
	KeyUID  = "uid"
	KeyName = "name"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// TokenVerifier is the part of the firebase auth client used to check ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier   TokenVerifier
	authClient *auth.Client
}

func NewAuthMiddleware(ctx context.Context, projectID string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{verifier: client, authClient: client}, nil
}

func NewAuthMiddlewareWithVerifier(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

func unauthorized(c echo.Context, code string) error {
	return c.JSON(http.StatusUnauthorized, map[string]map[string]string{
		"error": {"code": code, "message": "sign in required"},
	})
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return unauthorized(c, "unauthorized")
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return unauthorized(c, "invalid_token")
		}
		c.Set(KeyUID, token.UID)
		if name, ok := token.Claims["name"].(string); ok {
			c.Set(KeyName, name)
		}
		return next(c)
	}
}

// Client returns the firebase auth client, or nil when built from a bare verifier.
func (m *AuthMiddleware) Client() *auth.Client {
	return m.authClient
}

// HeaderIdentity trusts X-User-ID and X-User-Name. Only for local runs without Firebase.
func HeaderIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
		if uid == "" {
			return unauthorized(c, "unauthorized")
		}
		c.Set(KeyUID, uid)
		if name := strings.TrimSpace(c.Request().Header.Get(HeaderUserName)); name != "" {
			c.Set(KeyName, name)
		}
		return next(c)
	}
}

// RequireAdmin lets through only the listed uids. Must run after an identity middleware.
func RequireAdmin(uids []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(uids))
	for _, u := range uids {
		if u = strings.TrimSpace(u); u != "" {
			allowed[u] = true
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get(KeyUID).(string)
			if !allowed[uid] {
				return c.JSON(http.StatusForbidden, map[string]map[string]string{
					"error": {"code": "forbidden", "message": "admin only"},
				})
			}
			return next(c)
		}
	}
}
