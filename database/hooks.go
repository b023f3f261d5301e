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
	"context"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// QueryRecord is one executed statement captured by the recording hook.
type QueryRecord struct {
	Query     string
	Operation string
	Err       error
	StartTime time.Time
	Duration  time.Duration
}

// QueryRecorder accumulates the statements executed during one request.
// It is safe for concurrent use.
type QueryRecorder struct {
	mu      sync.Mutex
	records []QueryRecord
}

func (r *QueryRecorder) add(rec QueryRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Queries returns a copy of the captured records.
func (r *QueryRecorder) Queries() []QueryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QueryRecord, len(r.records))
	copy(out, r.records)
	return out
}

type recorderCtxKey struct{}

// WithQueryRecorder attaches a fresh recorder to the context. Statements
// executed with the returned context are captured by engines built with
// query recording enabled.
func WithQueryRecorder(ctx context.Context) (context.Context, *QueryRecorder) {
	rec := &QueryRecorder{}
	return context.WithValue(ctx, recorderCtxKey{}, rec), rec
}

// RecorderFromContext returns the recorder attached to the context, or nil.
func RecorderFromContext(ctx context.Context) *QueryRecorder {
	rec, _ := ctx.Value(recorderCtxKey{}).(*QueryRecorder)
	return rec
}

// recordingHook captures executed statements into the context's recorder.
type recordingHook struct{}

var _ bun.QueryHook = (*recordingHook)(nil)

func (h *recordingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *recordingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	rec := RecorderFromContext(ctx)
	if rec == nil {
		return
	}
	rec.add(QueryRecord{
		Query:     event.Query,
		Operation: event.Operation(),
		Err:       event.Err,
		StartTime: event.StartTime,
		Duration:  time.Since(event.StartTime),
	})
}

// slowQueryHook logs statements that exceed the configured threshold.
type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime && h.logger != nil {
		h.logger.Warn("Slow query detected",
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", color.New(color.FgYellow).Sprint(event.Query),
		)
	}
}
