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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type Account struct {
	bun.BaseModel `bun:"table:sys_account,alias:a"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type UserProfile struct {
	ID   int64 `bun:"id,pk,autoincrement"`
	Note string
}

type AuditEvent struct {
	ID int64 `bun:"id,pk,autoincrement"`
}

func TestRegisterTableFromTag(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*Account)(nil)))

	reg, err := r.Lookup(&Account{})
	require.NoError(t, err)
	assert.Equal(t, "sys_account", reg.Table)
	assert.Equal(t, "", reg.Bind)
}

func TestRegisterTableDerivedFromName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*UserProfile)(nil)))

	reg, err := r.Lookup(&UserProfile{})
	require.NoError(t, err)
	assert.Equal(t, "user_profiles", reg.Table)
}

func TestRegisterOptions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*AuditEvent)(nil), WithBind("analytics"), WithTable("audit_log")))

	reg, err := r.Lookup(&AuditEvent{})
	require.NoError(t, err)
	assert.Equal(t, "audit_log", reg.Table)
	assert.Equal(t, "analytics", reg.Bind)

	bind, err := r.BindKey(&AuditEvent{})
	require.NoError(t, err)
	assert.Equal(t, "analytics", bind)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*Account)(nil)))
	assert.Error(t, r.Register(&Account{}))
}

func TestRegisterRejectsNonStruct(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(42))
	assert.Error(t, r.Register("users"))
}

func TestLookupUnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(&Account{})
	var unknownErr *UnknownModelError
	require.ErrorAs(t, err, &unknownErr)
}

func TestLookupThroughSlicePointer(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*Account)(nil)))

	var accounts []*Account
	reg, err := r.Lookup(&accounts)
	require.NoError(t, err)
	assert.Equal(t, "sys_account", reg.Table)
}

func TestModelsForBindKeepsOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register((*Account)(nil)))
	require.NoError(t, r.Register((*UserProfile)(nil)))
	require.NoError(t, r.Register((*AuditEvent)(nil), WithBind("analytics")))

	primary := r.ModelsForBind("")
	require.Len(t, primary, 2)
	assert.Equal(t, "sys_account", primary[0].Table)
	assert.Equal(t, "user_profiles", primary[1].Table)

	analytics := r.ModelsForBind("analytics")
	require.Len(t, analytics, 1)

	assert.Equal(t, []string{"", "analytics"}, r.Binds())
}

func TestRegisterModelEmbeddingBase(t *testing.T) {
	type Article struct {
		bun.BaseModel `bun:"table:articles,alias:ar"`
		Base

		Title string `bun:"title,notnull"`
	}

	r := NewRegistry()
	require.NoError(t, r.Register((*Article)(nil)))

	reg, err := r.Lookup(&Article{})
	require.NoError(t, err)
	assert.Equal(t, "articles", reg.Table)
}

func TestRecordReflected(t *testing.T) {
	r := NewRegistry()
	r.RecordReflected("", []string{"users", "orders"})
	assert.Equal(t, []string{"users", "orders"}, r.ReflectedTables(""))

	r.RecordReflected("", []string{"users"})
	assert.Equal(t, []string{"users"}, r.ReflectedTables(""))
	assert.Empty(t, r.ReflectedTables("analytics"))
}
