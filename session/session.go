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

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/model"
	"github.com/uptrace/bun"
)

// ErrSessionReleased is returned by every operation on a released session.
var ErrSessionReleased = errors.New("session has been released")

// EngineResolver resolves a bind name to its engine.
type EngineResolver func(bind string) (*database.Engine, error)

// Operation names a unit-of-work change kind.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Change is one flushed modification, reported to commit listeners when
// modification tracking is enabled.
type Change struct {
	Op    Operation
	Model interface{}
}

// Options wires a session to its owning extension.
type Options struct {
	Resolver EngineResolver
	Registry *model.Registry
	Logger   database.Logger
	// TrackModifications accumulates flushed changes and reports them
	// through OnCommit after a successful commit.
	TrackModifications bool
	OnCommit           func(changes []Change)
}

type pendingOp struct {
	op    Operation
	model interface{}
}

type txState struct {
	tx bun.Tx
	// dirty marks a transaction that carries flushed writes; ExpireAll
	// leaves dirty transactions alone so uncommitted work is not lost.
	dirty bool
}

// Session is a unit of work scoped to one request. It is safe for
// concurrent use, though a request normally drives it sequentially.
type Session struct {
	mu       sync.Mutex
	opts     Options
	pending  []pendingOp
	txs      map[string]*txState
	txOrder  []string
	changes  []Change
	released bool
}

// New creates a session. The resolver and registry come from the owning
// extension object.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = database.GetLogger()
	}
	return &Session{opts: opts, txs: make(map[string]*txState)}
}

// Add queues an insert for the model.
func (s *Session) Add(m interface{}) error { return s.enqueue(OpInsert, m) }

// Merge queues an update for the model, matched by primary key.
func (s *Session) Merge(m interface{}) error { return s.enqueue(OpUpdate, m) }

// Remove queues a delete for the model, matched by primary key.
func (s *Session) Remove(m interface{}) error { return s.enqueue(OpDelete, m) }

func (s *Session) enqueue(op Operation, m interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSessionReleased
	}
	// Fail fast on unregistered types; the bind itself is resolved again at
	// flush time.
	if _, err := s.opts.Registry.Lookup(m); err != nil {
		return err
	}
	s.pending = append(s.pending, pendingOp{op: op, model: m})
	return nil
}

// tx returns the transaction for a bind, beginning it on first touch.
// Callers must hold s.mu.
func (s *Session) tx(ctx context.Context, bind string) (*txState, error) {
	if st, ok := s.txs[bind]; ok {
		return st, nil
	}
	engine, err := s.opts.Resolver(bind)
	if err != nil {
		return nil, err
	}
	tx, err := engine.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for bind %q: %w", bind, err)
	}
	st := &txState{tx: tx}
	s.txs[bind] = st
	s.txOrder = append(s.txOrder, bind)
	return st, nil
}

// Flush executes the pending queue in order. Each entry is routed to the
// transaction of its model's bind; a single flush may touch several binds.
// On failure the failed entry stays queued so a rollback can discard it.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSessionReleased
	}
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	for len(s.pending) > 0 {
		op := s.pending[0]
		bind, err := s.opts.Registry.BindKey(op.model)
		if err != nil {
			return err
		}
		st, err := s.tx(ctx, bind)
		if err != nil {
			return err
		}

		var execErr error
		switch op.op {
		case OpInsert:
			_, execErr = st.tx.NewInsert().Model(op.model).Exec(ctx)
		case OpUpdate:
			_, execErr = st.tx.NewUpdate().Model(op.model).WherePK().Exec(ctx)
		case OpDelete:
			_, execErr = st.tx.NewDelete().Model(op.model).WherePK().Exec(ctx)
		}
		if execErr != nil {
			return fmt.Errorf("flush failed for %s on bind %q: %w", op.op, bind, execErr)
		}

		st.dirty = true
		if s.opts.TrackModifications {
			s.changes = append(s.changes, Change{Op: op.op, Model: op.model})
		}
		s.pending = s.pending[1:]
	}
	return nil
}

// SelectModel flushes pending work, then returns a SELECT builder bound to
// the transaction of the model's bind. The model may be a pointer to a
// struct or to a slice of structs.
func (s *Session) SelectModel(ctx context.Context, m interface{}) (*bun.SelectQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrSessionReleased
	}
	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}
	st, err := s.txFor(ctx, m)
	if err != nil {
		return nil, err
	}
	return st.tx.NewSelect().Model(m), nil
}

// InsertModel returns an INSERT builder on the model's bind transaction for
// statements the queue cannot express (bulk loads, ON CONFLICT clauses).
func (s *Session) InsertModel(ctx context.Context, m interface{}) (*bun.InsertQuery, error) {
	st, err := s.builderTx(ctx, m)
	if err != nil {
		return nil, err
	}
	return st.tx.NewInsert().Model(m), nil
}

// UpdateModel returns an UPDATE builder on the model's bind transaction.
func (s *Session) UpdateModel(ctx context.Context, m interface{}) (*bun.UpdateQuery, error) {
	st, err := s.builderTx(ctx, m)
	if err != nil {
		return nil, err
	}
	return st.tx.NewUpdate().Model(m), nil
}

// DeleteModel returns a DELETE builder on the model's bind transaction.
func (s *Session) DeleteModel(ctx context.Context, m interface{}) (*bun.DeleteQuery, error) {
	st, err := s.builderTx(ctx, m)
	if err != nil {
		return nil, err
	}
	return st.tx.NewDelete().Model(m), nil
}

// builderTx hands out a write transaction for direct builder use and marks
// it dirty, since execution happens outside the session's sight.
func (s *Session) builderTx(ctx context.Context, m interface{}) (*txState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrSessionReleased
	}
	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}
	st, err := s.txFor(ctx, m)
	if err != nil {
		return nil, err
	}
	st.dirty = true
	return st, nil
}

// EngineFor resolves the engine a model routes to, without touching any
// transaction. Useful for dialect feature checks.
func (s *Session) EngineFor(m interface{}) (*database.Engine, error) {
	bind, err := s.opts.Registry.BindKey(m)
	if err != nil {
		return nil, err
	}
	return s.opts.Resolver(bind)
}

// txFor resolves the model's bind and returns its transaction. Callers must
// hold s.mu.
func (s *Session) txFor(ctx context.Context, m interface{}) (*txState, error) {
	bind, err := s.opts.Registry.BindKey(m)
	if err != nil {
		return nil, err
	}
	return s.tx(ctx, bind)
}

// Commit flushes pending work and commits every open transaction, then
// reports accumulated changes to the commit listener. Commits across binds
// are sequential, not atomic.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSessionReleased
	}
	if err := s.flushLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}

	var commitErr error
	for i, bind := range s.txOrder {
		if err := s.txs[bind].tx.Commit(); err != nil {
			commitErr = fmt.Errorf("commit failed for bind %q: %w", bind, err)
			for _, rest := range s.txOrder[i+1:] {
				_ = s.txs[rest].tx.Rollback()
			}
			break
		}
	}
	s.txs = make(map[string]*txState)
	s.txOrder = nil

	var fire func()
	if commitErr == nil && s.opts.TrackModifications && s.opts.OnCommit != nil && len(s.changes) > 0 {
		changes := make([]Change, len(s.changes))
		copy(changes, s.changes)
		onCommit := s.opts.OnCommit
		fire = func() { onCommit(changes) }
	}
	s.changes = nil
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
	return commitErr
}

// Rollback drops the pending queue and rolls back every open transaction.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *Session) rollbackLocked() error {
	s.pending = nil
	s.changes = nil
	var firstErr error
	for _, bind := range s.txOrder {
		if err := s.txs[bind].tx.Rollback(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rollback failed for bind %q: %w", bind, err)
		}
	}
	s.txs = make(map[string]*txState)
	s.txOrder = nil
	return firstErr
}

// ExpireAll discards cached read state: transactions without flushed writes
// are rolled back and forgotten, so the next access begins a fresh
// transaction and re-reads from the database. Transactions carrying
// uncommitted writes are kept.
func (s *Session) ExpireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keep []string
	for _, bind := range s.txOrder {
		st := s.txs[bind]
		if st.dirty {
			keep = append(keep, bind)
			continue
		}
		_ = st.tx.Rollback()
		delete(s.txs, bind)
	}
	s.txOrder = keep
}

// Reset prepares the session for a new request: roll back leftovers from a
// prior failed release, flush, and expire all cached state. The ordering
// mirrors the request-entry contract and must not change.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Rollback(); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	s.ExpireAll()
	return nil
}

// Release rolls back any uncommitted work and retires the session. It is
// idempotent; every later operation returns ErrSessionReleased.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	_ = s.rollbackLocked()
	s.released = true
}

// IsReleased reports whether the session has been released.
func (s *Session) IsReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// PendingCount returns the number of queued, unflushed operations.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
