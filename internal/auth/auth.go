// Package auth issues and checks CMS sessions: bcrypt password hashes stored
// in profiles and HS256 JWTs carried in a header or cookie.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName carries the session token for browser clients.
const CookieName = "kj_session"

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned for expired, malformed or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmailTaken signals a duplicate profile email.
	ErrEmailTaken = errors.New("email already registered")
)

// Claims represents JWT claims.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(secret string, expiration time.Duration) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

// Expiration is the token lifetime.
func (m *JWTManager) Expiration() time.Duration {
	return m.expiration
}

// GenerateToken signs a token for a profile.
func (m *JWTManager) GenerateToken(p Profile) (string, error) {
	now := m.now()
	claims := &Claims{
		Sub:   p.ID,
		Email: p.Email,
		Name:  p.FullName,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT token and returns the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// Profile is a CMS user.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Store reads and writes profiles.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate checks an email/password pair.
func (s *Store) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	const query = `SELECT id, email, full_name, role, password_hash FROM profiles WHERE email = ?`
	var p Profile
	var hash string
	err := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).
		Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return Profile{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return p, nil
}

// Create adds a profile with a hashed password.
func (s *Store) Create(ctx context.Context, email, fullName, role, password string) (Profile, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}
	p := Profile{
		ID:       uuid.NewString(),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		FullName: fullName,
		Role:     role,
	}
	const insert = `INSERT INTO profiles (id, email, full_name, role, password_hash) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, p.ID, p.Email, p.FullName, p.Role, hash); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, err
	}
	return p, nil
}
