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
	"sync"

	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/model"
	"github.com/tomoncle/sqlbind/session"
)

// SQL is the extension object tying the configured database targets to an
// application. It owns the per-bind engine cache, the model registry, and
// the session factory. One instance per application; configuration is
// read-only after New.
type SQL struct {
	cfg      *database.Config
	logger   database.Logger
	registry *model.Registry

	// mu guards the connector map against the double-construction race on
	// first access per bind. Held only while looking up or creating a
	// connector, never during query execution.
	mu         sync.Mutex
	connectors map[string]*database.Connector

	teardownWarning sync.Once

	listenersMu sync.RWMutex
	listeners   []func(changes []session.Change)
}

// New validates and normalizes the configuration and builds the extension.
// No engine is constructed until first access.
func New(cfg *database.Config) (*SQL, error) {
	if cfg == nil {
		cfg = &database.Config{}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SQL{
		cfg:        cfg,
		logger:     database.GetLogger(),
		registry:   model.NewRegistry(),
		connectors: make(map[string]*database.Connector),
	}, nil
}

// Config returns the configuration the extension was built with.
func (d *SQL) Config() *database.Config { return d.cfg }

// Registry returns the model registry.
func (d *SQL) Registry() *model.Registry { return d.registry }

// RegisterModel records a persistent model type, optionally routed to a
// named bind via model.WithBind.
func (d *SQL) RegisterModel(m interface{}, opts ...model.Option) error {
	return d.registry.Register(m, opts...)
}

func (d *SQL) connector(bind string) *database.Connector {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.connectors[bind]
	if !ok {
		c = database.NewConnector(d.cfg, bind, d.logger)
		d.connectors[bind] = c
	}
	return c
}

// Engine returns the pooled engine for a bind, building it on first use and
// reusing it while the configured URI and echo flag are unchanged. The
// empty bind name selects the primary database.
func (d *SQL) Engine(bind string) (*database.Engine, error) {
	return d.connector(bind).Engine()
}

// Session manufactures a new unit of work wired to this extension. Bind
// resolution happens inside the session per table access, so one session
// may span several binds.
func (d *SQL) Session() *session.Session {
	return session.New(session.Options{
		Resolver:           d.Engine,
		Registry:           d.registry,
		Logger:             d.logger,
		TrackModifications: d.cfg.TrackModifications,
		OnCommit:           d.notifyModifications,
	})
}

// AddModificationListener registers a callback fired after a successful
// commit with the changes that session flushed. Listeners only fire when
// TrackModifications is enabled.
func (d *SQL) AddModificationListener(fn func(changes []session.Change)) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

func (d *SQL) notifyModifications(changes []session.Change) {
	d.listenersMu.RLock()
	listeners := make([]func([]session.Change), len(d.listeners))
	copy(listeners, d.listeners)
	d.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(changes)
	}
}

// HealthCheck pings every configured bind and reports per-bind status,
// keyed by bind name.
func (d *SQL) HealthCheck(ctx context.Context) map[string]*database.HealthStatus {
	out := make(map[string]*database.HealthStatus)
	for _, bind := range d.cfg.BindNames() {
		engine, err := d.Engine(bind)
		if err != nil {
			out[bind] = &database.HealthStatus{Bind: bind, LastError: err.Error()}
			continue
		}
		out[bind] = engine.HealthCheck(ctx)
	}
	return out
}

// Stats reports connection pool statistics per configured bind.
func (d *SQL) Stats() map[string]*database.DBStats {
	out := make(map[string]*database.DBStats)
	for _, bind := range d.cfg.BindNames() {
		engine, err := d.Engine(bind)
		if err != nil {
			continue
		}
		out[bind] = engine.Stats()
	}
	return out
}

// Close releases every engine built so far.
func (d *SQL) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, c := range d.connectors {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
