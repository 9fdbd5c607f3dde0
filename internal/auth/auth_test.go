package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"

	"flowstudio/backend/internal/config"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct {
	payload []byte
}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func fakeJWT(t *testing.T, claims map[string]interface{}) (string, []byte) {
	t.Helper()
	headerData := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": "test-key",
	}
	headerBytes, _ := json.Marshal(headerData)
	encodedHeader := base64.RawURLEncoding.EncodeToString(headerBytes)
	payload, _ := json.Marshal(claims)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	encodedSignature := base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
	return encodedHeader + "." + encodedPayload + "." + encodedSignature, payload
}

func TestRequireAuth_BearerToken_ResolvesPrincipal(t *testing.T) {
	issuer := "https://test-issuer.com"
	clientID := "test-client"

	fakeToken, payload := fakeJWT(t, map[string]interface{}{
		"iss":   issuer,
		"aud":   clientID,
		"sub":   "user-42",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": "alice@acme.com",
		"name":  "Alice Doe",
	})

	keySet := &MockKeySet{payload: payload}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: true, // Matches logic in auth.go for apiVerifier
	})

	a := &Auth{apiVerifier: verifier, logger: &NoOpLogger{}}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		assert.True(t, ok, "principal should be in context")
		assert.Equal(t, "user-42", principal.ID)
		assert.Equal(t, "Alice Doe", principal.Name)
		assert.Equal(t, "alice@acme.com", principal.Email)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_BearerToken_FallsBackToEmail(t *testing.T) {
	issuer := "https://test-issuer.com"

	fakeToken, payload := fakeJWT(t, map[string]interface{}{
		"iss":   issuer,
		"aud":   "test-client",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": "bob@acme.com",
	})

	keySet := &MockKeySet{payload: payload}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{SkipClientIDCheck: true})

	a := &Auth{apiVerifier: verifier, logger: &NoOpLogger{}}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "bob@acme.com", principal.ID)
		assert.Equal(t, "bob@acme.com", principal.Name)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_InvalidBearerToken(t *testing.T) {
	issuer := "https://test-issuer.com"
	keySet := &MockKeySet{}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{SkipClientIDCheck: true})

	a := &Auth{apiVerifier: verifier, logger: &NoOpLogger{}}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run on invalid token")
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_BypassMode(t *testing.T) {
	// Create Auth via New to verify config logic
	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "dev", principal.ID)
		assert.Equal(t, "dev@localhost", principal.Email)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_IncompleteConfig(t *testing.T) {
	cfg := &config.Config{Environment: "PROD"}
	_, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.Error(t, err)
}

func TestWithPrincipalRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{ID: "u1", Name: "U One"})
	principal, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", principal.ID)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
