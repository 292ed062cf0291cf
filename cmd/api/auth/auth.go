package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
)

// Roles that may act on other agents' preferences.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

// AuthUser represents the authenticated caller.
type AuthUser struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// HasRole reports whether u holds any of roles. Admins hold every role.
func (u AuthUser) HasRole(roles ...string) bool {
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

// Middleware validates the bearer token, or injects a fixed user when
// TestBypassAuth is set.
func Middleware(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.TestBypassAuth {
			c.Set("user", AuthUser{
				ID:          "test-user",
				Email:       "test@example.com",
				DisplayName: "Test User",
				Roles:       []string{"agent"},
			})
			c.Next()
			return
		}
		if a.Keyf == nil {
			app.AbortError(c, http.StatusInternalServerError, "auth_unconfigured", "no token verifier configured", nil)
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "missing bearer token", nil)
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), a.Keyf)
		if err != nil || !token.Valid {
			app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "invalid token", nil)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "invalid token", nil)
			return
		}
		u := AuthUser{
			ID:          stringClaim(claims, "sub"),
			Email:       stringClaim(claims, "email"),
			DisplayName: stringClaim(claims, "name"),
		}
		if u.DisplayName == "" {
			u.DisplayName = stringClaim(claims, "preferred_username")
		}
		for _, key := range []string{"roles", "groups"} {
			switch g := claims[key].(type) {
			case []interface{}:
				for _, v := range g {
					if s, ok := v.(string); ok {
						u.Roles = append(u.Roles, s)
					}
				}
			case string:
				u.Roles = append(u.Roles, g)
			}
		}
		c.Set("user", u)
		c.Next()
	}
}

func stringClaim(c jwt.MapClaims, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// CurrentUser returns the user set by Middleware.
func CurrentUser(c *gin.Context) (AuthUser, bool) {
	v, ok := c.Get("user")
	if !ok {
		return AuthUser{}, false
	}
	u, ok := v.(AuthUser)
	return u, ok
}

// Me returns the authenticated user.
func Me(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "unauthenticated", nil)
		return
	}
	c.JSON(http.StatusOK, u)
}

// RequireRole allows callers holding one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "unauthenticated", nil)
			return
		}
		if !u.HasRole(roles...) {
			app.AbortError(c, http.StatusForbidden, "forbidden", "forbidden", nil)
			return
		}
		c.Next()
	}
}

// HMACKeyfunc verifies HS256/384/512 tokens signed with secret.
func HMACKeyfunc(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
}

// JWKS holds a key set fetched from an OIDC provider.
type JWKS struct {
	url    string
	client *http.Client
	mu     sync.RWMutex
	set    jwk.Set
}

// FetchJWKS loads the key set at url.
func FetchJWKS(ctx context.Context, url string, client *http.Client) (*JWKS, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	j := &JWKS{url: url, client: client}
	if err := j.Refresh(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// Refresh re-fetches the key set, keeping the old one on failure.
func (j *JWKS) Refresh(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, j.url, jwk.WithHTTPClient(j.client))
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	j.mu.Lock()
	j.set = set
	j.mu.Unlock()
	return nil
}

// Watch refreshes the key set every interval until ctx is done.
func (j *JWKS) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Refresh(ctx); err != nil {
				log.Warn().Err(err).Str("jwks_url", j.url).Msg("jwks refresh")
			}
		}
	}
}

// Keyfunc resolves the verification key by the token's kid, falling back to
// the first key when the token carries none.
func (j *JWKS) Keyfunc(t *jwt.Token) (interface{}, error) {
	j.mu.RLock()
	set := j.set
	j.mu.RUnlock()
	kid, _ := t.Header["kid"].(string)
	var key jwk.Key
	if kid != "" {
		k, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("no jwk for kid %q", kid)
		}
		key = k
	} else {
		k, ok := set.Key(0)
		if !ok {
			return nil, fmt.Errorf("empty jwk set")
		}
		key = k
	}
	var pub any
	if err := key.Raw(&pub); err != nil {
		return nil, err
	}
	return pub, nil
}
