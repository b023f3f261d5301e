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
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"
)

// Registration describes one persistent model type.
type Registration struct {
	// Model is the prototype instance the type was registered with.
	Model interface{}
	// Type is the underlying struct type.
	Type reflect.Type
	// Table is the resolved table name.
	Table string
	// Bind names the database target this model belongs to; empty means the
	// primary database.
	Bind string
}

// Option customizes a registration.
type Option func(*Registration)

// WithBind routes the model to a named bind instead of the primary database.
func WithBind(bind string) Option {
	return func(r *Registration) { r.Bind = bind }
}

// WithTable overrides the table name derived from the struct.
func WithTable(name string) Option {
	return func(r *Registration) { r.Table = name }
}

// UnknownModelError reports a type that was never registered.
type UnknownModelError struct {
	Type reflect.Type
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("type %s is not a registered model", e.Type)
}

// Registry stores model registrations and the tables discovered by schema
// reflection. It is safe for concurrent use; registrations are expected to
// happen during setup and be read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	byType    map[reflect.Type]*Registration
	order     []*Registration
	reflected map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:    make(map[reflect.Type]*Registration),
		reflected: make(map[string][]string),
	}
}

// Register records a model type. The argument must be a pointer to a struct;
// the table name is taken from the embedded bun.BaseModel tag when present,
// otherwise derived from the type name the way Bun does.
func (r *Registry) Register(m interface{}, opts ...Option) error {
	typ, err := structTypeOf(m)
	if err != nil {
		return err
	}

	reg := &Registration{Model: m, Type: typ, Table: tableNameOf(typ)}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[typ]; exists {
		return fmt.Errorf("model %s is already registered", typ)
	}
	r.byType[typ] = reg
	r.order = append(r.order, reg)
	return nil
}

// Lookup resolves the registration for a model instance or pointer.
func (r *Registry) Lookup(m interface{}) (*Registration, error) {
	typ, err := structTypeOf(m)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	reg, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownModelError{Type: typ}
	}
	return reg, nil
}

// BindKey returns the bind name a model routes to. Resolution is evaluated
// on every call, never cached by the caller's unit of work.
func (r *Registry) BindKey(m interface{}) (string, error) {
	reg, err := r.Lookup(m)
	if err != nil {
		return "", err
	}
	return reg.Bind, nil
}

// Models returns all registrations in registration order.
func (r *Registry) Models() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Registration, len(r.order))
	copy(out, r.order)
	return out
}

// ModelsForBind returns the registrations belonging to one bind, in
// registration order.
func (r *Registry) ModelsForBind(bind string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Registration
	for _, reg := range r.order {
		if reg.Bind == bind {
			out = append(out, reg)
		}
	}
	return out
}

// Binds returns the distinct bind names seen across registrations, the
// primary bind first when present.
func (r *Registry) Binds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, reg := range r.order {
		if !seen[reg.Bind] {
			seen[reg.Bind] = true
			out = append(out, reg.Bind)
		}
	}
	return out
}

// RecordReflected stores the table names discovered by schema reflection for
// a bind, replacing any previous result.
func (r *Registry) RecordReflected(bind string, tables []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(tables))
	copy(out, tables)
	r.reflected[bind] = out
}

// ReflectedTables returns the table names recorded for a bind by the most
// recent reflection.
func (r *Registry) ReflectedTables(bind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := r.reflected[bind]
	out := make([]string, len(tables))
	copy(out, tables)
	return out
}

func structTypeOf(m interface{}) (reflect.Type, error) {
	if m == nil {
		return nil, fmt.Errorf("model must be a non-nil pointer to a struct")
	}
	typ := reflect.TypeOf(m)
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct or pointer to struct, got %s", typ.Kind())
	}
	return typ, nil
}

var baseModelType = reflect.TypeOf(bun.BaseModel{})

// tableNameOf resolves the table name for a struct type: the table option of
// an embedded bun.BaseModel tag wins, otherwise the pluralized snake_case
// type name, matching Bun's own derivation.
func tableNameOf(typ reflect.Type) string {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Type != baseModelType {
			continue
		}
		for _, part := range strings.Split(field.Tag.Get("bun"), ",") {
			if name, ok := strings.CutPrefix(part, "table:"); ok && name != "" {
				return name
			}
		}
	}
	return inflection.Plural(underscore(typ.Name()))
}

func underscore(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
