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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// injectDriverDefaults adjusts engine options based on the database dialect
// before pool construction. Values the user set explicitly are never
// replaced; the injector only fills gaps.
//
// MySQL targets (except the managed mysql+gaerdbms variant) default to a
// pool of 10 connections recycled every two hours, with a 4-byte-safe UTF-8
// character set. In-memory SQLite targets are forced onto a single shared
// connection; file SQLite targets without an explicit pool size get no
// pooling at all, and relative file paths are resolved against the
// application root directory.
func injectDriverDefaults(uri *URI, base EngineOptions, rootDir string) (EngineOptions, error) {
	opts := base.clone()

	switch {
	case uri.IsMySQL():
		uri.SetDefaultQuery("charset", "utf8mb4")
		uri.SetDefaultQuery("parseTime", "true")
		if uri.Scheme != "mysql+gaerdbms" {
			if opts.PoolSize == nil {
				size := 10
				opts.PoolSize = &size
			}
			if opts.PoolRecycle == 0 {
				opts.PoolRecycle = 7200 * time.Second
			}
		}

	case uri.InMemory():
		// The whole database lives inside the pooled connections; an empty
		// pool would silently drop all data between statements.
		if opts.PoolSize != nil && *opts.PoolSize == 0 {
			return opts, ErrMemoryPoolSizeZero
		}
		if opts.PoolSize == nil {
			size := 1
			opts.PoolSize = &size
		}
		if opts.MaxIdleConns == nil {
			idle := *opts.PoolSize
			opts.MaxIdleConns = &idle
		}

	case uri.IsSQLite():
		if opts.PoolSize == nil || *opts.PoolSize == 0 {
			// No pooling: every connection is opened per use and closed as
			// soon as it is returned.
			opts.PoolSize = nil
			zero := 0
			opts.MaxIdleConns = &zero
		}
		if !filepath.IsAbs(uri.Database) {
			if err := os.MkdirAll(rootDir, 0o755); err != nil {
				return opts, fmt.Errorf("failed to create application root directory %q: %w", rootDir, err)
			}
			uri.Database = filepath.Join(rootDir, uri.Database)
		}
	}

	return opts, nil
}

// applyPoolSettings configures the database/sql pool from resolved options.
func applyPoolSettings(sqlDB *sql.DB, opts EngineOptions) {
	if opts.PoolSize != nil {
		sqlDB.SetMaxOpenConns(*opts.PoolSize)
	}
	if opts.MaxIdleConns != nil {
		sqlDB.SetMaxIdleConns(*opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(opts.PoolRecycle)
	sqlDB.SetConnMaxIdleTime(opts.PoolTimeout)
}
