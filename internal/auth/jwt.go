// Package auth issues and checks the HS256 tokens that guard the
// configuration API, and carries the caller's tenant scope.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject     = "sub"
	claimUserID      = "user_id"
	claimFranchiseID = "franchise_id"
	claimRole        = "role"
)

// Roles understood by the configuration API.
const (
	RolePlatformAdmin = "platform_admin"
	RoleAdmin         = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID      string `json:"user_id"`
	FranchiseID string `json:"franchise_id,omitempty"`
	Role        string `json:"role"`
}

// IsPlatform reports whether the caller manages platform-owned resources
// and may see every franchise.
func (p Principal) IsPlatform() bool {
	return p.Role == RolePlatformAdmin
}

// CanManage reports whether the caller may change configuration owned by
// (ownerType, ownerID). Franchise admins are limited to their franchise.
func (p Principal) CanManage(ownerType, ownerID string) bool {
	if p.IsPlatform() {
		return true
	}
	if p.Role != RoleAdmin || p.FranchiseID == "" {
		return false
	}
	return ownerType == "franchise" && strings.EqualFold(ownerID, p.FranchiseID)
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// UserIDFromContext extracts the user id from JWT claims.
func UserIDFromContext(c echo.Context) (string, error) {
	p, err := PrincipalFromContext(c)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// PrincipalFromContext reads the caller from the validated token.
func PrincipalFromContext(c echo.Context) (Principal, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		UserID:      claimString(claims, claimUserID),
		FranchiseID: claimString(claims, claimFranchiseID),
		Role:        claimString(claims, claimRole),
	}
	if p.UserID == "" {
		p.UserID = claimString(claims, claimSubject)
	}
	if p.UserID == "" {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
	}
	return p, nil
}

// GenerateToken creates a signed JWT for the principal.
func GenerateToken(p Principal, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	claims := jwt.MapClaims{
		claimSubject: p.UserID,
		claimUserID:  p.UserID,
		claimRole:    p.Role,
	}
	if p.FranchiseID != "" {
		claims[claimFranchiseID] = p.FranchiseID
	}
	return sign(claims, secret, expiresIn)
}

// RefreshTokenFromContext re-issues the caller's token with fresh iat and
// exp. The original lifetime is kept; fallback applies when it is unknown.
func RefreshTokenFromContext(c echo.Context, secret string, fallback time.Duration) (string, time.Time, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	lifetime := fallback
	iat, iatErr := claims.GetIssuedAt()
	exp, expErr := claims.GetExpirationTime()
	if iatErr == nil && expErr == nil && iat != nil && exp != nil {
		if d := exp.Sub(iat.Time); d > 0 {
			lifetime = d
		}
	}
	fresh := jwt.MapClaims{}
	for k, v := range claims {
		if k == "iat" || k == "exp" {
			continue
		}
		fresh[k] = v
	}
	return sign(fresh, secret, lifetime)
}

func sign(claims jwt.MapClaims, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims["iat"] = now.Unix()
	claims["exp"] = expiresAt.Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
