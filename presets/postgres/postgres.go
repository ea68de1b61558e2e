// Package postgres is the "postgres" preset: a context stage that opens a Postgres connection
// with pgx, database/sql or sqlx and exposes it with a goqu query builder.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // database/sql driver

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/presets/postgres/internal/adapters"
	"github.com/AntonStoeckl/subsystem-go/presets/presetkit"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Name is the preset name used with --preset.
const Name = "postgres"

// HandleKey is the context key holding the *Handle.
const HandleKey = "postgres"

// Supported drivers.
const (
	DriverPGX  = "pgx"
	DriverSQL  = "sql"
	DriverSQLX = "sqlx"
)

const (
	dialectPostgres = "postgres"
	driverLibPQ     = "postgres"
	retryOperation  = "postgres_connect"
)

var (
	// ErrInvalidDSN is returned when the DSN cannot be parsed. It is never retried.
	ErrInvalidDSN = errors.New("invalid postgres dsn")

	dialect = goqu.Dialect(dialectPostgres)
)

// Config is read from the "postgres" config section.
type Config struct {
	DSN    string `json:"dsn" validate:"required"`
	Driver string `json:"driver" validate:"oneof=pgx sql sqlx"`

	MaxConns int `json:"maxConns" validate:"gte=0"`
	MinConns int `json:"minConns" validate:"gte=0,ltefield=MaxConns"`

	// ConnectTimeout is the per-attempt connect timeout in seconds.
	ConnectTimeout int `json:"connectTimeout" validate:"gte=0"`

	// ConnectAttempts bounds the connect retries.
	ConnectAttempts int `json:"connectAttempts" validate:"gte=1"`
}

// DefaultConfig is applied to every zero field of the "postgres" section.
var DefaultConfig = Config{
	Driver:          DriverPGX,
	MaxConns:        10,
	ConnectTimeout:  5,
	ConnectAttempts: 5,
}

// Handle is what the context stage stores under HandleKey.
// Exactly one of Pool, DB and DBX is set, matching Driver.
type Handle struct {
	Driver  string
	Pool    *pgxpool.Pool
	DB      *sql.DB
	DBX     *sqlx.DB
	Builder goqu.DialectWrapper

	db adapters.DBAdapter
}

// Builder returns the goqu postgres dialect.
func Builder() goqu.DialectWrapper {
	return dialect
}

// Query runs a query through whichever driver is open.
func (h *Handle) Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error) {
	return h.db.Query(ctx, query, args...)
}

// Exec runs a statement through whichever driver is open and returns the affected rows.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := h.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// QueryBuilt renders a goqu dataset to SQL and runs it.
func (h *Handle) QueryBuilt(ctx context.Context, ds *goqu.SelectDataset) (adapters.DBRows, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return h.db.Query(ctx, query, args...)
}

// Ping checks the connection.
func (h *Handle) Ping(ctx context.Context) error {
	return h.db.Ping(ctx)
}

// Close releases the connection pool.
func (h *Handle) Close() error {
	return h.db.Close()
}

func init() {
	engine.Register(Name, Module())
}

// Module returns the preset for explicit composition.
func Module() subsystem.Module {
	return subsystem.Module{
		Name:        Name,
		File:        "presets/postgres",
		Context:     Connect,
		HealthCheck: Ping,
	}
}

// Connect opens the configured driver, retrying with backoff until the server answers a ping.
func Connect(ctx context.Context, state *subsystem.State) (subsystem.Values, error) {
	var config Config
	if err := presetkit.DecodeConfig(state, Name, &config, DefaultConfig); err != nil {
		return nil, err
	}

	var handle *Handle
	err := presetkit.Retry(ctx,
		func(ctx context.Context) error {
			opened, err := Open(ctx, config)
			if err != nil {
				return err
			}

			handle = opened

			return nil
		},
		presetkit.WithMaxAttempts(config.ConnectAttempts),
		presetkit.WithRetryIf(func(err error) bool { return !errors.Is(err, ErrInvalidDSN) }),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	return subsystem.Values{HandleKey: handle}, nil
}

// Ping is the preset's health check.
func Ping(ctx context.Context, state *subsystem.State) error {
	handle, err := presetkit.FromContext[*Handle](state.Context(), HandleKey)
	if err != nil {
		return err
	}

	if err = handle.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	return nil
}

// Open opens one connection pool for config and pings it once.
func Open(ctx context.Context, config Config) (*Handle, error) {
	handle := &Handle{Driver: config.Driver, Builder: dialect}
	timeout := time.Duration(config.ConnectTimeout) * time.Second

	switch config.Driver {
	case DriverPGX:
		poolConfig, err := pgxpool.ParseConfig(config.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
		}

		poolConfig.MaxConns = int32(config.MaxConns)
		poolConfig.MinConns = int32(config.MinConns)
		poolConfig.ConnConfig.ConnectTimeout = timeout

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}

		handle.Pool = pool
		handle.db = adapters.NewPGXAdapter(pool)

	case DriverSQL, DriverSQLX:
		db, err := sql.Open(driverLibPQ, config.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
		}

		db.SetMaxOpenConns(config.MaxConns)
		db.SetMaxIdleConns(config.MinConns)

		if config.Driver == DriverSQL {
			handle.DB = db
			handle.db = adapters.NewSQLAdapter(db)
		} else {
			handle.DBX = sqlx.NewDb(db, driverLibPQ)
			handle.db = adapters.NewSQLXAdapter(handle.DBX)
		}

	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", config.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := handle.db.Ping(pingCtx); err != nil {
		_ = handle.db.Close()
		return nil, err
	}

	return handle, nil
}
