package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/services/logger"
	"github.com/trezcool/campus/storage/database"
)

// PrepareDB opens a freshly migrated sqlite database living in a temp dir.
// It is closed when the test ends.
func PrepareDB(t *testing.T) (*sqlx.DB, *core.Config) {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Path = filepath.Join(t.TempDir(), "campus.db")
	conf.Storage.Dir = filepath.Join(t.TempDir(), "uploads")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db, conf
}

// NewLogger returns a core.Logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// CreateUser inserts a User straight through repo, bypassing registration rules.
func CreateUser(t *testing.T, repo user.Repository, uname, pwd string, role user.Role, course ...string) user.User {
	t.Helper()

	usr := user.User{
		Username:  uname,
		FirstName: "First " + uname,
		LastName:  "Last " + uname,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if len(course) > 0 {
		usr.Course = course[0]
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	} else {
		usr.PasswordHash = []byte("-")
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
