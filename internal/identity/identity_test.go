package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestDecodeCredential(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwt.MapClaims{
		"name":  "Ana Pérez",
		"email": "ana@example.com",
		"sub":   "1234",
	})

	profile, err := DecodeCredential(token)
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", profile.Name)
	assert.Equal(t, "ana@example.com", profile.Email)
}

func TestDecodeCredentialRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"missing email", signedToken(t, jwt.MapClaims{"name": "Ana"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCredential(tt.token)
			require.Error(t, err)
			assert.True(t, errdefs.IsUnauthorized(err))
		})
	}
}

func TestMiddlewareIssuesAndReusesDeviceCookie(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, isValidDeviceID(seen))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DeviceCookieName, cookies[0].Name)

	first := seen
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, first, seen)
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "../../etc"})
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "../../etc", seen)
	assert.True(t, isValidDeviceID(seen))
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", IPFromRequest(r))

	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", IPFromRequest(r))

	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", IPFromRequest(r))
}
