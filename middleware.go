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
	"net/http"

	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/repository"
	"github.com/tomoncle/sqlbind/session"
)

type sessionCtxKey struct{}

// Middleware wraps a handler with the session lifecycle. On request entry a
// fresh session is reset (rollback, flush, expire) and injected into the
// request context; on exit the session is always released, even when the
// handler panics, so the next request starts from a clean transaction.
//
// When CommitOnTeardown is enabled the session is committed after a
// successful handler run, before release, and a deprecation warning is
// logged once.
func (d *SQL) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := d.Session()
		ctx := r.Context()
		if d.cfg.RecordQueriesEnabled() {
			ctx, _ = database.WithQueryRecorder(ctx)
		}
		if err := sess.Reset(ctx); err != nil {
			d.logger.Error("Failed to reset session", "error", err)
		}
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)

		// Release must run no matter how the handler exits. A panic skips
		// the teardown commit below, mirroring the success-only commit
		// contract, and still ends here.
		defer sess.Release()

		next.ServeHTTP(w, r.WithContext(ctx))

		if d.cfg.CommitOnTeardown {
			d.teardownWarning.Do(func() {
				d.logger.Warn("CommitOnTeardown is deprecated and will be removed;" +
					" call Session.Commit directly inside the handler instead")
			})
			if err := sess.Commit(ctx); err != nil {
				d.logger.Error("Commit on teardown failed", "error", err)
			}
		}
	})
}

// SessionFromContext returns the session injected by Middleware, or nil for
// a context outside the request lifecycle.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*session.Session)
	return sess
}

// Query returns the generic query helper for T bound to the context's
// session. Outside the request lifecycle the helper's operations fail with
// repository.ErrNoSession.
func Query[T any](ctx context.Context) repository.Repository[T] {
	return repository.New[T](SessionFromContext(ctx))
}

// RecordedQueries returns the statements captured for this request, or nil
// when query recording is disabled.
func RecordedQueries(ctx context.Context) []database.QueryRecord {
	rec := database.RecorderFromContext(ctx)
	if rec == nil {
		return nil
	}
	return rec.Queries()
}
