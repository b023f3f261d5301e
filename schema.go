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

package sqlbind

import (
	"context"
	"fmt"

	"github.com/tomoncle/sqlbind/database"
)

const (
	// BindDefault selects the primary database.
	BindDefault = ""
	// BindAll selects every configured bind in schema operations.
	BindAll = "__all__"
)

// resolveBinds expands a bind selector: no arguments or the BindAll
// sentinel mean every configured bind, otherwise the given names are used
// as-is.
func (d *SQL) resolveBinds(selector []string) []string {
	if len(selector) == 0 {
		return d.cfg.BindNames()
	}
	for _, bind := range selector {
		if bind == BindAll {
			return d.cfg.BindNames()
		}
	}
	return selector
}

// CreateAll creates the tables of every model registered under the selected
// binds, on each bind's engine. Existing tables are left untouched; use a
// migration tool to alter them.
func (d *SQL) CreateAll(ctx context.Context, binds ...string) error {
	for _, bind := range d.resolveBinds(binds) {
		engine, err := d.Engine(bind)
		if err != nil {
			return err
		}
		for _, reg := range d.registry.ModelsForBind(bind) {
			_, err := engine.DB().NewCreateTable().
				Model(reg.Model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				if is, kind := database.IsSQLError(err); is && kind == database.ExistTableErr {
					continue
				}
				return fmt.Errorf("create failed for table %q on bind %q: %w", reg.Table, bind, err)
			}
		}
	}
	return nil
}

// DropAll drops the tables of every model registered under the selected
// binds, in reverse registration order so dependents go first.
func (d *SQL) DropAll(ctx context.Context, binds ...string) error {
	for _, bind := range d.resolveBinds(binds) {
		engine, err := d.Engine(bind)
		if err != nil {
			return err
		}
		models := d.registry.ModelsForBind(bind)
		for i := len(models) - 1; i >= 0; i-- {
			reg := models[i]
			_, err := engine.DB().NewDropTable().
				Model(reg.Model).
				IfExists().
				Exec(ctx)
			if err != nil {
				if is, kind := database.IsSQLError(err); is && kind == database.NoTableErr {
					continue
				}
				return fmt.Errorf("drop failed for table %q on bind %q: %w", reg.Table, bind, err)
			}
		}
	}
	return nil
}

// Reflect introspects the actual tables present in each selected bind's
// database and records them in the registry. It works at the connection
// level and does not filter by registered models.
func (d *SQL) Reflect(ctx context.Context, binds ...string) error {
	for _, bind := range d.resolveBinds(binds) {
		engine, err := d.Engine(bind)
		if err != nil {
			return err
		}
		tables, err := listTables(ctx, engine)
		if err != nil {
			return fmt.Errorf("reflect failed on bind %q: %w", bind, err)
		}
		d.registry.RecordReflected(bind, tables)
	}
	return nil
}

// listTables queries the dialect's catalog for user table names.
func listTables(ctx context.Context, engine *database.Engine) ([]string, error) {
	var query string
	switch engine.Dialect() {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "postgres":
		query = `SELECT tablename FROM pg_tables WHERE schemaname = current_schema() ORDER BY tablename`
	case "mysql":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	default:
		return nil, &database.UnsupportedDialectError{Scheme: engine.URI().Scheme}
	}

	rows, err := engine.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
