package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	apppkg "github.com/mark3748/sla-notifier/cmd/api/app"
	authpkg "github.com/mark3748/sla-notifier/cmd/api/auth"
	"github.com/mark3748/sla-notifier/internal/config"
)

func newApp(cfg config.Config, keyf jwt.Keyfunc) *apppkg.App {
	gin.SetMode(gin.TestMode)
	a := apppkg.NewApp(cfg, nil, nil, keyf, nil, nil)
	a.R.GET("/me", authpkg.Middleware(a), authpkg.Me)
	a.R.GET("/admin", authpkg.Middleware(a), authpkg.RequireRole(authpkg.RoleSupervisor), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return a
}

func get(a *apppkg.App, path, token string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewarePopulatesUserFromClaims(t *testing.T) {
	secret := "secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-123",
		"email": "user@example.com",
		"name":  "User Name",
		"roles": []string{"agent", "supervisor"},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	a := newApp(config.Config{Env: "test"}, authpkg.HMACKeyfunc(secret))

	rr := get(a, "/me", signed)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var u authpkg.AuthUser
	if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if u.Email != "user@example.com" || u.DisplayName != "User Name" || u.ID != "user-123" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if len(u.Roles) != 2 || u.Roles[1] != "supervisor" {
		t.Fatalf("roles not populated: %+v", u.Roles)
	}
	if rr := get(a, "/admin", signed); rr.Code != http.StatusNoContent {
		t.Fatalf("supervisor should pass RequireRole, got %d", rr.Code)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	a := newApp(config.Config{Env: "test"}, authpkg.HMACKeyfunc("secret"))
	other, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("wrong"))
	agent, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "roles": []string{"agent"}}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"bad signature", "/me", other, http.StatusUnauthorized},
		{"garbage", "/me", "not.a.jwt", http.StatusUnauthorized},
		{"wrong role", "/admin", agent, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := get(a, tt.path, tt.token); rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestMiddlewareWithoutKeyfunc(t *testing.T) {
	a := newApp(config.Config{Env: "test"}, nil)
	if rr := get(a, "/me", "x"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestMiddlewareBypass(t *testing.T) {
	a := newApp(config.Config{Env: "test", TestBypassAuth: true}, nil)
	rr := get(a, "/me", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestJWKSKeyfunc(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := jwk.FromRaw(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	_ = pub.Set(jwk.KeyIDKey, "k1")
	set := jwk.NewSet()
	_ = set.AddKey(pub)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	jwks, err := authpkg.FetchJWKS(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	a := newApp(config.Config{Env: "test"}, jwks.Keyfunc)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":   "oidc-user",
		"email": "ann@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}
	if rr := get(a, "/me", signed); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	tok.Header["kid"] = "unknown"
	signed, _ = tok.SignedString(priv)
	if rr := get(a, "/me", signed); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown kid: expected 401, got %d", rr.Code)
	}
}
