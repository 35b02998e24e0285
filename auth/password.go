package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid credentials")

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}

// Authenticator 主持人登录：比对密码哈希，签发 admin token
type Authenticator struct {
	passwordHash string
	jwt          *JWTService
}

func NewAuthenticator(passwordHash string, jwt *JWTService) *Authenticator {
	return &Authenticator{passwordHash: passwordHash, jwt: jwt}
}

// Login returns an admin token when password matches.
func (a *Authenticator) Login(password string) (string, error) {
	if a.passwordHash == "" || !CheckPassword(password, a.passwordHash) {
		return "", ErrBadCredentials
	}
	return a.jwt.Generate(RoleAdmin, RoleAdmin)
}

// IsAdmin reports whether token carries the admin role.
func (a *Authenticator) IsAdmin(token string) bool {
	claims, err := a.jwt.Validate(token)
	return err == nil && claims.Role == RoleAdmin
}

func (a *Authenticator) JWT() *JWTService {
	return a.jwt
}
