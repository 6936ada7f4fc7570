package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/campus/core"
)

const (
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
	EngineSQLite   = "sqlite"
)

var (
	//go:embed migrations
	migrations embed.FS

	// goose keeps its settings in globals
	gooseMu sync.Mutex

	pingTimeout = 30 * time.Second
)

// dataSource returns the driver name and DSN for the configured engine.
func dataSource(dbName string, admin bool, conf *core.Config) (string, string, error) {
	dbc := conf.Database
	usr, pwd := dbc.User, dbc.Password
	if admin && dbc.AdminUser != "" {
		usr, pwd = dbc.AdminUser, dbc.AdminPassword
	}

	switch dbc.Engine {
	case EnginePostgres:
		sslMode := "require"
		if dbc.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(usr, pwd),
			Host:     dbc.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return "postgres", u.String(), nil

	case EngineMySQL:
		mc := mysql.NewConfig()
		mc.User = usr
		mc.Passwd = pwd
		mc.Net = "tcp"
		mc.Addr = dbc.Address()
		mc.DBName = dbName
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.ClientFoundRows = true // matched rather than changed rows, like the other engines
		if !dbc.DisableTLS {
			mc.TLSConfig = "true"
		}
		return "mysql", mc.FormatDSN(), nil

	case EngineSQLite:
		q := make(url.Values)
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		q.Set("_time_format", "sqlite")
		return "sqlite", "file:" + dbc.Path + "?" + q.Encode(), nil
	}
	return "", "", errors.Errorf("unsupported database engine %q", dbc.Engine)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	driver, dsn, err := dataSource(dbName, admin, conf)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if conf.Database.Engine == EngineSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Open connects to the application database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready, backing off between attempts.
func ping(db *sqlx.DB) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = pingTimeout

	if err := backoff.Retry(db.Ping, b); err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query string, args ...interface{}) (bool, error) {
	var found []bool
	if err := db.Select(&found, db.Rebind(query), args...); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" || conf.Database.AdminUser == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
			pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password))
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createPostgresDB(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		q := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
			pq.QuoteIdentifier(conf.Database.Name), pq.QuoteIdentifier(conf.Database.User))
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

func createMySQLDB(conf *core.Config) error {
	db, err := open("", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	q := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4", conf.Database.Name)
	if _, err = db.Exec(q); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the application database (and, on postgres, its owner).
func CreateIfNotExist(conf *core.Config) error {
	switch conf.Database.Engine {
	case EnginePostgres:
		return createPostgresDB(conf)
	case EngineMySQL:
		return createMySQLDB(conf)
	case EngineSQLite:
		if dir := filepath.Dir(conf.Database.Path); dir != "" {
			return errors.Wrap(os.MkdirAll(dir, 0o755), "creating database directory")
		}
		return nil
	}
	return errors.Errorf("unsupported database engine %q", conf.Database.Engine)
}

// dialect returns the goose dialect and migrations directory of engine.
func dialect(engine string) (string, string, error) {
	switch engine {
	case EnginePostgres:
		return "postgres", "migrations/postgres", nil
	case EngineMySQL:
		return "mysql", "migrations/mysql", nil
	case EngineSQLite:
		return "sqlite3", "migrations/sqlite", nil
	}
	return "", "", errors.Errorf("unsupported database engine %q", engine)
}

func runGoose(db *sqlx.DB, engine string, run func(dir string) error) error {
	gooseDialect, dir, err := dialect(engine)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())
	if err = goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return run(dir)
}

// Migrate applies all pending migrations.
func Migrate(db *sqlx.DB, engine string) error {
	err := runGoose(db, engine, func(dir string) error {
		return goose.Up(db.DB, dir)
	})
	return errors.Wrap(err, "migrating database")
}

// RunMigrations runs any goose command (up, down, status, redo, version..) against the embedded migrations.
func RunMigrations(db *sqlx.DB, engine, command string, args ...string) error {
	return runGoose(db, engine, func(dir string) error {
		goose.SetLogger(log.New(os.Stdout, "", 0))
		return goose.Run(command, db.DB, dir, args...)
	})
}

// Reset rolls back every migration then migrates again, leaving an empty schema.
func Reset(db *sqlx.DB, engine string) error {
	err := runGoose(db, engine, func(dir string) error {
		if err := goose.Reset(db.DB, dir); err != nil {
			return err
		}
		return goose.Up(db.DB, dir)
	})
	return errors.Wrap(err, "resetting database")
}

// Do runs fn with a per-attempt timeout of conf.QueryTimeout.
// Transient failures are retried once after conf.RetryBackoff, then reported as a core.StoreUnavailableError.
func Do(ctx context.Context, conf core.DatabaseConfig, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if conf.RetryBackoff > 0 {
		b.InitialInterval = conf.RetryBackoff
	}

	err := backoff.Retry(func() error {
		actx, cancel := withTimeout(ctx, conf.QueryTimeout)
		defer cancel()

		err := fn(actx)
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))

	if err != nil && IsTransient(err) {
		return core.NewStoreUnavailableError(err)
	}
	return err
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
