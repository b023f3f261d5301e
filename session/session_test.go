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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/model"
	"github.com/tomoncle/sqlbind/types"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID      int64            `bun:"id,pk,autoincrement"`
	Kind    string           `bun:"kind,notnull"`
	Payload types.JSONObject `bun:"payload,type:blob"`
}

type testEnv struct {
	registry   *model.Registry
	connectors map[string]*database.Connector
}

func (e *testEnv) resolve(bind string) (*database.Engine, error) {
	c, ok := e.connectors[bind]
	if !ok {
		return nil, &database.UnknownBindError{Bind: bind}
	}
	return c.Engine()
}

func (e *testEnv) session(opts Options) *Session {
	opts.Resolver = e.resolve
	opts.Registry = e.registry
	return New(opts)
}

// newTestEnv builds a primary and an analytics SQLite database, registers
// User on the primary and Event on analytics, and creates both tables.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &database.Config{
		DatabaseURI: "sqlite:///" + filepath.Join(dir, "primary.db"),
		Binds: map[string]string{
			"analytics": "sqlite:///" + filepath.Join(dir, "analytics.db"),
		},
	}
	cfg.Normalize()

	env := &testEnv{
		registry: model.NewRegistry(),
		connectors: map[string]*database.Connector{
			"":          database.NewConnector(cfg, "", nil),
			"analytics": database.NewConnector(cfg, "analytics", nil),
		},
	}
	require.NoError(t, env.registry.Register((*User)(nil)))
	require.NoError(t, env.registry.Register((*Event)(nil), model.WithBind("analytics")))

	ctx := context.Background()
	for bind, m := range map[string]interface{}{"": (*User)(nil), "analytics": (*Event)(nil)} {
		engine, err := env.resolve(bind)
		require.NoError(t, err)
		_, err = engine.DB().NewCreateTable().Model(m).Exec(ctx)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		for _, c := range env.connectors {
			_ = c.Close()
		}
	})
	return env
}

func (e *testEnv) countUsers(t *testing.T) int {
	t.Helper()
	engine, err := e.resolve("")
	require.NoError(t, err)
	count, err := engine.DB().NewSelect().Model((*User)(nil)).Count(context.Background())
	require.NoError(t, err)
	return count
}

func (e *testEnv) countEvents(t *testing.T) int {
	t.Helper()
	engine, err := e.resolve("analytics")
	require.NoError(t, err)
	count, err := engine.DB().NewSelect().Model((*Event)(nil)).Count(context.Background())
	require.NoError(t, err)
	return count
}

func TestAddFlushCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Add(&User{Name: "grace"}))
	assert.Equal(t, 2, sess.PendingCount())

	require.NoError(t, sess.Flush(ctx))
	assert.Equal(t, 0, sess.PendingCount())

	// Not visible outside the transaction yet.
	assert.Equal(t, 0, env.countUsers(t))

	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 2, env.countUsers(t))
}

func TestCommitFlushesImplicitly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 1, env.countUsers(t))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Flush(ctx))
	require.NoError(t, sess.Rollback())

	assert.Equal(t, 0, env.countUsers(t))
	assert.Equal(t, 0, sess.PendingCount())
}

func TestRoutingAcrossBinds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Add(&Event{Kind: "login"}))
	require.NoError(t, sess.Commit(ctx))

	assert.Equal(t, 1, env.countUsers(t))
	assert.Equal(t, 1, env.countEvents(t))
}

func TestJSONColumnRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	payload := types.JSONObject{"ip": "10.0.0.1", "agent": "cli"}
	require.NoError(t, sess.Add(&Event{Kind: "login", Payload: payload}))
	require.NoError(t, sess.Commit(ctx))

	engine, err := env.resolve("analytics")
	require.NoError(t, err)
	got := new(Event)
	require.NoError(t, engine.DB().NewSelect().Model(got).Where("kind = ?", "login").Scan(ctx))
	assert.Equal(t, payload, got.Payload)
}

func TestMergeAndRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	u := &User{Name: "ada"}
	require.NoError(t, sess.Add(u))
	require.NoError(t, sess.Commit(ctx))
	sess.Release()

	sess = env.session(Options{})
	defer sess.Release()
	u.Name = "ada lovelace"
	require.NoError(t, sess.Merge(u))
	require.NoError(t, sess.Commit(ctx))

	engine, err := env.resolve("")
	require.NoError(t, err)
	got := new(User)
	require.NoError(t, engine.DB().NewSelect().Model(got).Where("id = ?", u.ID).Scan(ctx))
	assert.Equal(t, "ada lovelace", got.Name)

	sess2 := env.session(Options{})
	defer sess2.Release()
	require.NoError(t, sess2.Remove(u))
	require.NoError(t, sess2.Commit(ctx))
	assert.Equal(t, 0, env.countUsers(t))
}

func TestSelectModelAutoflushes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))

	var users []*User
	q, err := sess.SelectModel(ctx, &users)
	require.NoError(t, err)
	require.NoError(t, q.Scan(ctx))

	// The pending insert was flushed into the transaction before reading.
	assert.Equal(t, 0, sess.PendingCount())
	assert.Len(t, users, 1)
}

func TestAddUnregisteredModel(t *testing.T) {
	env := newTestEnv(t)

	type Orphan struct {
		ID int64 `bun:"id,pk"`
	}
	sess := env.session(Options{})
	defer sess.Release()

	var unknownErr *model.UnknownModelError
	assert.ErrorAs(t, sess.Add(&Orphan{}), &unknownErr)
}

func TestExpireAllKeepsDirtyTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Flush(ctx))

	sess.ExpireAll()

	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 1, env.countUsers(t))
}

func TestResetClearsPendingWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Reset(ctx))

	assert.Equal(t, 0, sess.PendingCount())
	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 0, env.countUsers(t))
}

func TestReleaseDiscardsAndRetires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.session(Options{})
	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Flush(ctx))

	sess.Release()
	sess.Release()
	assert.True(t, sess.IsReleased())
	assert.Equal(t, 0, env.countUsers(t))

	assert.ErrorIs(t, sess.Add(&User{Name: "x"}), ErrSessionReleased)
	assert.ErrorIs(t, sess.Flush(ctx), ErrSessionReleased)
	assert.ErrorIs(t, sess.Commit(ctx), ErrSessionReleased)
	_, err := sess.SelectModel(ctx, &User{})
	assert.ErrorIs(t, err, ErrSessionReleased)
}

func TestTrackModificationsReportsChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var got []Change
	sess := env.session(Options{
		TrackModifications: true,
		OnCommit:           func(changes []Change) { got = changes },
	})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Add(&Event{Kind: "login"}))
	require.NoError(t, sess.Commit(ctx))

	require.Len(t, got, 2)
	assert.Equal(t, OpInsert, got[0].Op)
	assert.IsType(t, &User{}, got[0].Model)
	assert.IsType(t, &Event{}, got[1].Model)
}

func TestTrackModificationsDisabledByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fired := false
	sess := env.session(Options{OnCommit: func([]Change) { fired = true }})
	defer sess.Release()

	require.NoError(t, sess.Add(&User{Name: "ada"}))
	require.NoError(t, sess.Commit(ctx))
	assert.False(t, fired)
}

func TestEngineForRoutesByBind(t *testing.T) {
	env := newTestEnv(t)

	sess := env.session(Options{})
	defer sess.Release()

	primary, err := sess.EngineFor(&User{})
	require.NoError(t, err)
	assert.Equal(t, "", primary.Bind())

	analytics, err := sess.EngineFor(&Event{})
	require.NoError(t, err)
	assert.Equal(t, "analytics", analytics.Bind())
}
