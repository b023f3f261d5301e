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

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/session"
	"github.com/tomoncle/sqlbind/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// ErrNoSession is returned when a repository was built without a session,
// typically from a context outside the request middleware.
var ErrNoSession = errors.New("no session available: the context carries no unit of work")

type sessionRepository[T any] struct {
	sess *session.Session
}

// New returns a repository for T driven by the given session. A nil session
// is accepted; every operation then fails with ErrNoSession.
func New[T any](sess *session.Session) Repository[T] {
	return &sessionRepository[T]{sess: sess}
}

func (r *sessionRepository[T]) session() (*session.Session, error) {
	if r.sess == nil {
		return nil, ErrNoSession
	}
	return r.sess, nil
}

func (r *sessionRepository[T]) GetOne(ctx context.Context, id any) (*T, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entity T
	q, err := sess.SelectModel(ctx, &entity)
	if err != nil {
		return nil, err
	}
	if err := q.Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *sessionRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entities []*T
	q, err := sess.SelectModel(ctx, &entities)
	if err != nil {
		return nil, err
	}
	return entities, q.Scan(ctx)
}

func (r *sessionRepository[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entities []*T
	q, err := sess.SelectModel(ctx, &entities)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		q = q.Where(filter.Clause, filter.Args...)
	}
	return entities, q.Scan(ctx)
}

func (r *sessionRepository[T]) Query(ctx context.Context, clause string, args ...interface{}) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(clause, args...))
}

func (r *sessionRepository[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entities []*T
	q, err := sess.SelectModel(ctx, &entities)
	if err != nil {
		return nil, err
	}
	if page.Filter != nil {
		q = q.Where(page.Filter.Clause, page.Filter.Args...)
	}
	pagination := types.NewPagination[T](page)
	total, err := q.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = q.
		Offset(page.Offset()).
		Limit(page.EffectivePageSize()).
		Order(page.Orders...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *sessionRepository[T]) Create(ctx context.Context, entity ...*T) error {
	sess, err := r.session()
	if err != nil {
		return err
	}
	for _, e := range entity {
		if err := sess.Add(e); err != nil {
			return err
		}
	}
	return sess.Flush(ctx)
}

func (r *sessionRepository[T]) Update(ctx context.Context, entity *T) error {
	sess, err := r.session()
	if err != nil {
		return err
	}
	if err := sess.Merge(entity); err != nil {
		return err
	}
	return sess.Flush(ctx)
}

func (r *sessionRepository[T]) Delete(ctx context.Context, id any) error {
	sess, err := r.session()
	if err != nil {
		return err
	}
	var entity T
	q, err := sess.DeleteModel(ctx, &entity)
	if err != nil {
		return err
	}
	_, err = q.Where("id = ?", id).Exec(ctx)
	return err
}

func (r *sessionRepository[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	sess, err := r.session()
	if err != nil {
		return err
	}
	var probe T
	engine, err := sess.EngineFor(&probe)
	if err != nil {
		return err
	}

	entities := make([]*T, len(entity))
	copy(entities, entity)

	switch {
	case engine.DB().HasFeature(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, sess, fields, duplicateKeys, entities)
	case engine.DB().HasFeature(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, sess, fields, entities)
	default:
		return r.upsertFallback(ctx, sess, entities)
	}
}

func (r *sessionRepository[T]) upsertOnConflict(ctx context.Context, sess *session.Session, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{"id"}
	}
	var assignments []string
	for _, field := range fields {
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", bun.Ident(field), bun.Ident(field)))
	}
	q, err := sess.InsertModel(ctx, &entities)
	if err != nil {
		return err
	}
	_, err = q.
		On("CONFLICT (" + strings.Join(duplicateKeys, ",") + ") DO UPDATE").
		Set(strings.Join(assignments, ", ")).
		Exec(ctx)
	return err
}

func (r *sessionRepository[T]) upsertOnDuplicateKey(ctx context.Context, sess *session.Session, fields []string, entities []*T) error {
	var assignments []string
	for _, field := range fields {
		assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", bun.Ident(field), bun.Ident(field)))
	}
	q, err := sess.InsertModel(ctx, &entities)
	if err != nil {
		return err
	}
	_, err = q.
		On("DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")).
		Exec(ctx)
	return err
}

// upsertFallback inserts each entity and retries as an update when the
// driver reports a duplicate key.
func (r *sessionRepository[T]) upsertFallback(ctx context.Context, sess *session.Session, entities []*T) error {
	for _, e := range entities {
		q, err := sess.InsertModel(ctx, e)
		if err != nil {
			return err
		}
		if _, err = q.Exec(ctx); err != nil {
			if is, kind := database.IsSQLError(err); !is || kind != database.DuplicateKeyErr {
				return err
			}
			uq, uerr := sess.UpdateModel(ctx, e)
			if uerr != nil {
				return uerr
			}
			if _, uerr = uq.WherePK().Exec(ctx); uerr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, update error: %v", err, uerr)
			}
		}
	}
	return nil
}

func (r *sessionRepository[T]) SelectBuilder(ctx context.Context) (*bun.SelectQuery, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entity T
	return sess.SelectModel(ctx, &entity)
}

func (r *sessionRepository[T]) InsertBuilder(ctx context.Context) (*bun.InsertQuery, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entity T
	return sess.InsertModel(ctx, &entity)
}

func (r *sessionRepository[T]) UpdateBuilder(ctx context.Context) (*bun.UpdateQuery, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entity T
	return sess.UpdateModel(ctx, &entity)
}

func (r *sessionRepository[T]) DeleteBuilder(ctx context.Context) (*bun.DeleteQuery, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	var entity T
	return sess.DeleteModel(ctx, &entity)
}
