package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	secret := "test-secret"
	userID := "user-123"

	// Create an initial token with a 5-minute lifespan
	initialDuration := 5 * time.Minute
	initialTokenStr, _, err := GenerateToken(Principal{UserID: userID, Role: RoleAdmin}, secret, initialDuration)
	assert.NoError(t, err)

	// Parse the token to place it into the echo context
	token, err := jwt.Parse(initialTokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	assert.NoError(t, err)
	c.Set("user", token)

	// Simulate some time passing to ensure the new token has a different 'iat' and 'exp'
	time.Sleep(1 * time.Second)

	// Run the refresh function
	defaultDuration := 1 * time.Hour
	newTokenStr, newExpiresAt, err := RefreshTokenFromContext(c, secret, defaultDuration)
	assert.NoError(t, err)
	assert.NotEmpty(t, newTokenStr)

	// Parse the original token claims for comparison
	originalClaims, ok := token.Claims.(jwt.MapClaims)
	assert.True(t, ok)
	origIat := int64(originalClaims["iat"].(float64))
	origExp := int64(originalClaims["exp"].(float64))

	// Parse the new token
	newToken, err := jwt.Parse(newTokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	assert.NoError(t, err)
	assert.True(t, newToken.Valid)

	newClaims, ok := newToken.Claims.(jwt.MapClaims)
	assert.True(t, ok)

	// Ensure standard payload claims are retained
	assert.Equal(t, userID, newClaims[claimSubject])
	assert.Equal(t, userID, newClaims[claimUserID])

	// Validate the new time bounds
	newIat := int64(newClaims["iat"].(float64))
	newExp := int64(newClaims["exp"].(float64))

	// 1. Ensure time has advanced
	assert.Greater(t, newIat, origIat)

	// 2. Ensure it calculated the original duration and used it (5 mins), NOT the default 1 hour
	assert.Equal(t, newExp-newIat, origExp-origIat)
	assert.Equal(t, int64(5*60), newExp-newIat)

	// 3. Ensure the return value matches the claim
	assert.Equal(t, newExpiresAt.Unix(), newExp)
}

func TestRefreshTokenFromContext_MissingUser(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	secret := "test-secret"
	defaultDuration := 1 * time.Hour

	// Context without the "user" key
	_, _, err := RefreshTokenFromContext(c, secret, defaultDuration)
	assert.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "invalid token", httpErr.Message)
}

func TestPrincipalRoundTrip(t *testing.T) {
	t.Parallel()

	secret := "test-secret"
	want := Principal{UserID: "u-1", FranchiseID: "f-1", Role: RoleAdmin}
	signed, _, err := GenerateToken(want, secret, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	var got Principal
	e.GET("/me", func(c echo.Context) error {
		p, err := PrincipalFromContext(c)
		if err != nil {
			return err
		}
		got = p
		return c.NoContent(http.StatusOK)
	}, JWTMiddleware(secret, nil))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, got)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()

	_, _, err := GenerateToken(Principal{}, "secret", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken(Principal{UserID: "u"}, " ", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken(Principal{UserID: "u"}, "secret", 0)
	assert.Error(t, err)
}

func TestPrincipalCanManage(t *testing.T) {
	t.Parallel()

	platform := Principal{UserID: "p", Role: RolePlatformAdmin}
	admin := Principal{UserID: "a", Role: RoleAdmin, FranchiseID: "F-1"}
	member := Principal{UserID: "m", Role: "manager", FranchiseID: "f-1"}

	assert.True(t, platform.CanManage("platform", ""))
	assert.True(t, platform.CanManage("franchise", "f-2"))
	assert.True(t, admin.CanManage("franchise", "f-1"))
	assert.False(t, admin.CanManage("franchise", "f-2"))
	assert.False(t, admin.CanManage("platform", ""))
	assert.False(t, member.CanManage("franchise", "f-1"))
}
