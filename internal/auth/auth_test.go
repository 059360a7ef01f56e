package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testProfile() Profile {
	return Profile{ID: "p-1", Email: "desk@kjtimes.co.kr", FullName: "편집국", Role: "admin"}
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken(testProfile())
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "p-1", claims.Sub)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "편집국", claims.Name)
}

func TestJWTRejectsWrongSecretAndExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken(testProfile())
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewJWTManager("secret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("pw1234"), bcrypt.MinCost)
	require.NoError(t, err)

	query := regexp.QuoteMeta(`SELECT id, email, full_name, role, password_hash FROM profiles WHERE email = ?`)
	cols := []string{"id", "email", "full_name", "role", "password_hash"}
	mock.ExpectQuery(query).WithArgs("desk@kjtimes.co.kr").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p-1", "desk@kjtimes.co.kr", "편집국", "admin", string(hash)))
	mock.ExpectQuery(query).WithArgs("desk@kjtimes.co.kr").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p-1", "desk@kjtimes.co.kr", "편집국", "admin", string(hash)))
	mock.ExpectQuery(query).WithArgs("nobody@kjtimes.co.kr").
		WillReturnRows(sqlmock.NewRows(cols))

	s := NewStore(db)
	ctx := context.Background()

	p, err := s.Authenticate(ctx, " Desk@KJTimes.co.kr ", "pw1234")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)

	_, err = s.Authenticate(ctx, "desk@kjtimes.co.kr", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody@kjtimes.co.kr", "pw1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err = NewStore(db).Create(context.Background(), "desk@kjtimes.co.kr", "편집국", "admin", "pw")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken(testProfile())
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Middleware(m), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bad header format", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized, ""},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, http.StatusUnauthorized, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "p-1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK, "p-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
