/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Engine is one pooled database target: a Bun handle over a database/sql
// pool, plus the parsed URI it was built from.
type Engine struct {
	db             *bun.DB
	sqlDB          *sql.DB
	uri            *URI
	bind           string
	logger         Logger
	connectTimeout time.Duration
}

// DB returns the Bun handle.
func (e *Engine) DB() *bun.DB { return e.db }

// SQLDB returns the underlying database/sql pool.
func (e *Engine) SQLDB() *sql.DB { return e.sqlDB }

// URI returns the parsed target URI, including injected defaults.
func (e *Engine) URI() *URI { return e.uri }

// Bind returns the bind name this engine serves; empty for the primary.
func (e *Engine) Bind() string { return e.bind }

// Dialect returns the base dialect name (mysql, postgres, sqlite).
func (e *Engine) Dialect() string { return e.uri.Dialect() }

// Ping verifies connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close releases the connection pool.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	if e.logger != nil {
		if err != nil {
			e.logger.Error("Failed to close engine", "bind", e.bind, "error", err)
		} else {
			e.logger.Debug("Engine closed", "bind", e.bind)
		}
	}
	return err
}

// HealthStatus holds the result of a health check against one engine.
type HealthStatus struct {
	Bind          string        `json:"bind"`
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool statistics for one engine.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// HealthCheck pings the engine, bounded by the configured connect timeout,
// and reports pool usage.
func (e *Engine) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Bind: e.bind, LastCheckTime: start}

	timeout := e.connectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := e.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := e.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// Stats returns current pool statistics.
func (e *Engine) Stats() *DBStats {
	stats := e.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// newEngine builds an engine for the parsed URI: dialect defaults are
// injected, the pool opened and tuned, and query hooks attached. The engine
// does not connect eagerly; the first statement or Ping does.
func newEngine(cfg *Config, bind string, uri *URI, logger Logger) (*Engine, error) {
	opts, err := injectDriverDefaults(uri, cfg.EngineOptions, cfg.RootDir)
	if err != nil {
		return nil, err
	}

	driver, dsn, err := uri.DSN()
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	var db *bun.DB
	switch uri.Dialect() {
	case "mysql":
		sqlDB, err = sql.Open(driver, dsn)
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case "postgres":
		sqlDB, err = sql.Open(driver, dsn)
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case "sqlite":
		sqlDB, err = sql.Open(sqliteshim.ShimName, dsn)
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, &UnsupportedDialectError{Scheme: uri.Scheme}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", uri.Redacted(), err)
	}

	applyPoolSettings(sqlDB, opts)

	if cfg.Echo {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.RecordQueriesEnabled() {
		db.AddQueryHook(&recordingHook{})
	}
	if opts.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: opts.SlowQueryTime, logger: logger})
	}

	return &Engine{
		db:             db,
		sqlDB:          sqlDB,
		uri:            uri,
		bind:           bind,
		logger:         logger,
		connectTimeout: opts.ConnectTimeout,
	}, nil
}

type connectionKey struct {
	uri  string
	echo bool
}

// Connector lazily builds and caches the engine for one bind. The cached
// engine is reused while the configured URI and echo flag are unchanged and
// rebuilt when either differs, with the previous pool closed.
type Connector struct {
	cfg    *Config
	bind   string
	logger Logger

	mu           sync.Mutex
	engine       *Engine
	connectedFor *connectionKey
}

// NewConnector creates a connector for the given bind name; the empty name
// selects the primary database.
func NewConnector(cfg *Config, bind string, logger Logger) *Connector {
	if logger == nil {
		logger = GetLogger()
	}
	return &Connector{cfg: cfg, bind: bind, logger: logger}
}

// Bind returns the bind name this connector serves.
func (c *Connector) Bind() string { return c.bind }

// URI resolves the configured URI for this connector's bind.
func (c *Connector) URI() (string, error) {
	return c.cfg.URIFor(c.bind)
}

// Engine returns the cached engine, building it on first access. The lock
// covers construction only; query execution happens outside it.
func (c *Connector) Engine() (*Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	uri, err := c.URI()
	if err != nil {
		return nil, err
	}
	key := connectionKey{uri: uri, echo: c.cfg.Echo}
	if c.engine != nil && c.connectedFor != nil && *c.connectedFor == key {
		return c.engine, nil
	}

	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	engine, err := newEngine(c.cfg, c.bind, parsed, c.logger)
	if err != nil {
		return nil, err
	}

	if c.engine != nil {
		_ = c.engine.Close()
	}
	c.engine = engine
	c.connectedFor = &key
	c.logger.Debug("Engine created", "bind", c.bind, "dialect", parsed.Dialect(), "uri", parsed.Redacted())
	return engine, nil
}

// Close releases the cached engine, if any.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil
	}
	err := c.engine.Close()
	c.engine = nil
	c.connectedFor = nil
	return err
}
