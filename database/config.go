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
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineOptions tunes the connection pool behind an engine. Pointer fields
// distinguish "unset" from an explicit zero, which matters for the SQLite
// pooling rules.
type EngineOptions struct {
	// PoolSize limits open connections (database/sql MaxOpenConns).
	PoolSize *int `yaml:"pool_size" json:"pool_size"`
	// MaxIdleConns limits idle pooled connections.
	MaxIdleConns *int `yaml:"max_idle_conns" json:"max_idle_conns"`
	// PoolRecycle caps the lifetime of a pooled connection.
	PoolRecycle time.Duration `yaml:"pool_recycle" json:"pool_recycle"`
	// PoolTimeout caps how long a connection may sit idle.
	PoolTimeout time.Duration `yaml:"pool_timeout" json:"pool_timeout"`
	// ConnectTimeout bounds the health check ping against an engine.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// SlowQueryTime, when positive, logs statements slower than this.
	SlowQueryTime time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
}

func (o EngineOptions) clone() EngineOptions {
	out := o
	if o.PoolSize != nil {
		v := *o.PoolSize
		out.PoolSize = &v
	}
	if o.MaxIdleConns != nil {
		v := *o.MaxIdleConns
		out.MaxIdleConns = &v
	}
	return out
}

// Config holds the settings recognized by the integration layer. It is
// mutated only during setup and treated as read-only afterwards.
type Config struct {
	// DatabaseURI is the primary database target.
	DatabaseURI string `yaml:"database_uri" json:"database_uri"`
	// Binds maps bind names to secondary database targets.
	Binds map[string]string `yaml:"binds" json:"binds"`
	// Echo logs every executed statement through the bundebug hook.
	Echo bool `yaml:"echo" json:"echo"`
	// RecordQueries enables per-request query recording. When nil it
	// defaults to Debug || Testing.
	RecordQueries *bool `yaml:"record_queries" json:"record_queries"`
	// CommitOnTeardown commits the request session before release.
	//
	// Deprecated: call Session.Commit directly inside the handler.
	CommitOnTeardown bool `yaml:"commit_on_teardown" json:"commit_on_teardown"`
	// TrackModifications forwards flushed changes to commit listeners.
	TrackModifications bool `yaml:"track_modifications" json:"track_modifications"`
	// Debug and Testing describe the application mode.
	Debug   bool `yaml:"debug" json:"debug"`
	Testing bool `yaml:"testing" json:"testing"`
	// RootDir anchors relative SQLite file paths. Defaults to ".".
	RootDir string `yaml:"root_dir" json:"root_dir"`
	// EngineOptions apply to every engine built from this configuration and
	// take priority over dialect-injected defaults.
	EngineOptions EngineOptions `yaml:"engine_options" json:"engine_options"`
}

// Normalize fills defaults for unset keys.
func (c *Config) Normalize() {
	if c.Binds == nil {
		c.Binds = map[string]string{}
	}
	if c.RootDir == "" {
		c.RootDir = "."
	}
	if c.EngineOptions.ConnectTimeout <= 0 {
		c.EngineOptions.ConnectTimeout = 10 * time.Second
	}
}

// Validate checks the invariants required before any engine can be built.
func (c *Config) Validate() error {
	if c.DatabaseURI == "" && len(c.Binds) == 0 {
		return ErrNoConfiguredDatabase
	}
	return nil
}

// URIFor resolves a bind name to its configured URI. The empty bind name
// selects the primary database.
func (c *Config) URIFor(bind string) (string, error) {
	if bind == "" {
		if c.DatabaseURI == "" {
			return "", ErrNoPrimaryDatabase
		}
		return c.DatabaseURI, nil
	}
	uri, ok := c.Binds[bind]
	if !ok {
		return "", &UnknownBindError{Bind: bind}
	}
	return uri, nil
}

// RecordQueriesEnabled resolves the tri-state RecordQueries flag.
func (c *Config) RecordQueriesEnabled() bool {
	if c.RecordQueries != nil {
		return *c.RecordQueries
	}
	return c.Debug || c.Testing
}

// BindNames returns the selectable binds in the order schema operations
// walk them: the default bind first when a primary URI is configured,
// then the named binds sorted for determinism.
func (c *Config) BindNames() []string {
	names := make([]string, 0, len(c.Binds)+1)
	if c.DatabaseURI != "" {
		names = append(names, "")
	}
	binds := make([]string, 0, len(c.Binds))
	for name := range c.Binds {
		binds = append(binds, name)
	}
	sort.Strings(binds)
	return append(names, binds...)
}

// LoadConfig reads a YAML configuration file and applies environment
// variable overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnvOverrides overrides sensitive or deployment-specific settings from
// environment variables.
func (c *Config) ApplyEnvOverrides() {
	if uri := os.Getenv("SQLBIND_DATABASE_URI"); uri != "" {
		c.DatabaseURI = uri
	}
	if echo := os.Getenv("SQLBIND_ECHO"); echo != "" {
		c.Echo = echo == "true" || echo == "1"
	}
	if record := os.Getenv("SQLBIND_RECORD_QUERIES"); record != "" {
		v := record == "true" || record == "1"
		c.RecordQueries = &v
	}
	if rootDir := os.Getenv("SQLBIND_ROOT_DIR"); rootDir != "" {
		c.RootDir = rootDir
	}
	if poolSize := os.Getenv("SQLBIND_POOL_SIZE"); poolSize != "" {
		if val, err := strconv.Atoi(poolSize); err == nil {
			c.EngineOptions.PoolSize = &val
		}
	}
	if maxIdle := os.Getenv("SQLBIND_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil {
			c.EngineOptions.MaxIdleConns = &val
		}
	}
	if recycle := os.Getenv("SQLBIND_POOL_RECYCLE"); recycle != "" {
		if val, err := strconv.Atoi(recycle); err == nil {
			c.EngineOptions.PoolRecycle = time.Duration(val) * time.Second
		}
	}
}
