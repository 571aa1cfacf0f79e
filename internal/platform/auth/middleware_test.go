package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testCfg = JWTConfig{Issuer: "endoflow", SigningKey: []byte("0123456789abcdef0123456789abcdef")}

func runJWT(t *testing.T, cfg JWTConfig, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	called := false
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	return c, called, err
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token, err := IssueToken(testCfg, "dr-lee", "downtown", []string{RoleDentist}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	c, called, err := runJWT(t, testCfg, "Bearer "+token)
	if err != nil || !called {
		t.Fatalf("expected pass-through, got err=%v called=%v", err, called)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "dr-lee" {
		t.Errorf("unexpected user %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleDentist {
		t.Errorf("unexpected roles %v", roles)
	}
	if c.Get("jwt_clinic_id") != "downtown" {
		t.Errorf("unexpected clinic %v", c.Get("jwt_clinic_id"))
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired, _ := IssueToken(testCfg, "dr-lee", "", []string{RoleDentist}, -time.Minute)
	otherKey, _ := IssueToken(JWTConfig{Issuer: "endoflow", SigningKey: []byte("another-key-another-key-another!")}, "x", "", nil, time.Hour)
	wrongIssuer, _ := IssueToken(JWTConfig{Issuer: "elsewhere", SigningKey: testCfg.SigningKey}, "x", "", nil, time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: "endoflow"},
	}).SignedString(testCfg.SigningKey)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + otherKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
		{"no expiry", "Bearer " + noExp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, called, err := runJWT(t, testCfg, tt.header)
			if called {
				t.Error("next handler must not run")
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %v", err)
			}
		})
	}
}

func TestDevAuthMiddleware_GrantsAdmin(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := DevAuthMiddleware("main")(func(c echo.Context) error { return nil })(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roles := RolesFromContext(c.Request().Context())
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}
	if c.Get("jwt_clinic_id") != "main" {
		t.Errorf("expected default clinic, got %v", c.Get("jwt_clinic_id"))
	}
}
