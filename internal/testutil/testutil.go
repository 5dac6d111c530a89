package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/shiramwangi/gawa/internal/db"
	"github.com/shiramwangi/gawa/migrations"
)

// OpenTestDB opens a migrated SQLite database in a fresh temp dir.
// A file (rather than :memory:) lets concurrent connections share the same data.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "gawa.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrations.AutoMigrate(ctx, db.SQLite, 0, d); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return d
}

// GenerateJWTHS256 returns a signed JWT string carrying the claims the API reads.
func GenerateJWTHS256(t *testing.T, secret string, userID int64, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
