package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/storage/database"
)

const userColumns = "username, password_hash, first_name, last_name, role, course, " +
	"session_token, session_expires_at, created_at, last_login"

type userRow struct {
	Username         string      `db:"username"`
	PasswordHash     []byte      `db:"password_hash"`
	FirstName        string      `db:"first_name"`
	LastName         string      `db:"last_name"`
	Role             string      `db:"role"`
	Course           null.String `db:"course"`
	SessionToken     null.String `db:"session_token"`
	SessionExpiresAt null.Time   `db:"session_expires_at"`
	CreatedAt        time.Time   `db:"created_at"`
	LastLogin        null.Time   `db:"last_login"`
}

type userRepository struct {
	db   core.DB
	conf core.DatabaseConfig
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB, conf core.DatabaseConfig) *userRepository {
	return &userRepository{db: db, conf: conf}
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		Username:         usr.Username,
		PasswordHash:     usr.PasswordHash,
		FirstName:        usr.FirstName,
		LastName:         usr.LastName,
		Role:             string(usr.Role),
		Course:           null.NewString(usr.Course, usr.Course != ""),
		SessionToken:     null.NewString(usr.SessionToken, usr.SessionToken != ""),
		SessionExpiresAt: null.NewTime(usr.SessionExpiresAt.UTC(), !usr.SessionExpiresAt.IsZero()),
		CreatedAt:        usr.CreatedAt.UTC(),
		LastLogin:        null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	usr := user.User{
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Role:         user.Role(row.Role),
		Course:       row.Course.String,
		SessionToken: row.SessionToken.String,
		CreatedAt:    row.CreatedAt.UTC(),
	}
	if row.SessionExpiresAt.Valid {
		usr.SessionExpiresAt = row.SessionExpiresAt.Time.UTC()
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) unboilSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.unboil(r))
	}
	return users
}

// exec runs an update and maps "no row affected" to user.ErrNotFound.
func (repo userRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	var res sql.Result
	err := database.Do(ctx, repo.conf, func(ctx context.Context) (err error) {
		res, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
		return err
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// wrap adds context to unexpected errors, leaving sentinel errors comparable.
func (repo userRepository) wrap(err error, msg string) error {
	if err == nil || err == user.ErrNotFound {
		return err
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	q := repo.db.Rebind("SELECT " + userColumns + " FROM users WHERE " + where + " = ?")
	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		return repo.db.GetContext(ctx, &row, q, arg)
	})
	if err != nil {
		return user.User{}, database.TrapNoRows(err, user.ErrNotFound, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.boil(usr)
	q := "INSERT INTO users (" + userColumns + ") VALUES (:username, :password_hash, :first_name, :last_name, " +
		":role, :course, :session_token, :session_expires_at, :created_at, :last_login)"

	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		_, err := sqlx.NamedExecContext(ctx, repo.db, q, row)
		return err
	})
	switch {
	case err == nil:
		return repo.unboil(row), nil
	case database.IsUniqueViolation(err):
		return user.User{}, user.ErrUsernameExists
	case database.IsForeignKeyViolation(err):
		return user.User{}, user.ErrCourseNotFound
	}
	return user.User{}, errors.Wrap(err, "inserting user")
}

func (repo userRepository) GetUser(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "username", username)
}

func (repo userRepository) GetUserBySession(ctx context.Context, digest string) (user.User, error) {
	if digest == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "session_token", digest)
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		// users with username, first or last name matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			conds = append(conds, "(LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			in, inArgs, err := sqlx.In("role IN (?)", filter.Roles)
			if err != nil {
				return nil, errors.Wrap(err, "building role filter")
			}
			conds = append(conds, in)
			args = append(args, inArgs...)
		}
		if filter.Course != "" {
			conds = append(conds, "course = ?")
			args = append(args, filter.Course)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q = repo.db.Rebind(q + " ORDER BY username ASC")

	var rows []userRow
	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		rows = rows[:0]
		return repo.db.SelectContext(ctx, &rows, q, args...)
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unboilSlice(rows), nil
}

func (repo userRepository) StartSession(ctx context.Context, username, digest string, expiresAt, loginAt time.Time) error {
	err := repo.exec(ctx,
		"UPDATE users SET session_token = ?, session_expires_at = ?, last_login = ? WHERE username = ?",
		digest, expiresAt.UTC(), loginAt.UTC(), username)
	return repo.wrap(err, "starting session")
}

func (repo userRepository) ExtendSession(ctx context.Context, digest string, expiresAt time.Time) error {
	err := repo.exec(ctx, "UPDATE users SET session_expires_at = ? WHERE session_token = ?", expiresAt.UTC(), digest)
	return repo.wrap(err, "extending session")
}

// EndSession is a no-op for unknown digests.
func (repo userRepository) EndSession(ctx context.Context, digest string) error {
	err := repo.exec(ctx,
		"UPDATE users SET session_token = NULL, session_expires_at = NULL WHERE session_token = ?", digest)
	if errors.Cause(err) == user.ErrNotFound {
		return nil
	}
	return errors.Wrap(err, "ending session")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) error {
	row := repo.boil(usr)
	err := repo.exec(ctx,
		"UPDATE users SET first_name = ?, last_name = ?, role = ?, course = ?, password_hash = ?, "+
			"session_token = NULL, session_expires_at = NULL WHERE username = ?",
		row.FirstName, row.LastName, row.Role, row.Course, row.PasswordHash, row.Username)
	if database.IsForeignKeyViolation(err) {
		return user.ErrCourseNotFound
	}
	return repo.wrap(err, "updating user")
}

func (repo userRepository) UpdatePassword(ctx context.Context, username string, hash []byte) error {
	err := repo.exec(ctx,
		"UPDATE users SET password_hash = ?, session_token = NULL, session_expires_at = NULL WHERE username = ?",
		hash, username)
	return repo.wrap(err, "updating password")
}

func (repo userRepository) SetCourse(ctx context.Context, username, courseID string) error {
	err := repo.exec(ctx, "UPDATE users SET course = ? WHERE username = ?",
		null.NewString(courseID, courseID != ""), username)
	if database.IsForeignKeyViolation(err) {
		return user.ErrCourseNotFound
	}
	return repo.wrap(err, "setting user course")
}

func (repo userRepository) CountReferences(ctx context.Context, username string) (int, error) {
	var count int
	q := repo.db.Rebind("SELECT " +
		"(SELECT COUNT(*) FROM courses WHERE created_by = ?) + " +
		"(SELECT COUNT(*) FROM classes WHERE taught_by = ?) + " +
		"(SELECT COUNT(*) FROM documents WHERE created_by = ?)")
	err := database.Do(ctx, repo.conf, func(ctx context.Context) error {
		return repo.db.GetContext(ctx, &count, q, username, username, username)
	})
	return count, errors.Wrap(err, "counting user references")
}

func (repo userRepository) DeleteUser(ctx context.Context, username string) error {
	err := repo.exec(ctx, "DELETE FROM users WHERE username = ?", username)
	if database.IsForeignKeyViolation(err) {
		return user.ErrUserReferenced
	}
	return err
}
