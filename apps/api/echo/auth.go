package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
)

const (
	tokenContextKey = "userToken"
	tokenAudience   = "FeePortal"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the portal's login front; the API only verifies them.
// Subject is the admin id for admins and the student id (not the row id) for students.
type Claims struct {
	jwt.StandardClaims
	Name      string `json:"name,omitempty"`
	IsStudent bool   `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsAdmin   bool   `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

func newClaims(subject, name string, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name: name,
	}
}

func GetAdminClaims(adminID, name string, conf *core.Config) *Claims {
	claims := newClaims(adminID, name, conf)
	claims.IsAdmin = true
	return claims
}

func GetStudentClaims(s student.Student, conf *core.Config) *Claims {
	claims := newClaims(s.StudentID, s.Name, conf)
	claims.IsStudent = true
	return claims
}

func newJWTConfig(secret string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
