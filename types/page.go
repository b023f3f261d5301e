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

package types

// QueryFilter describes a WHERE clause and its argument values.
type QueryFilter struct {
	Clause string
	Args   []interface{}
}

// NewQueryFilter creates a query filter from a clause and its arguments.
func NewQueryFilter(clause string, args ...interface{}) *QueryFilter {
	return &QueryFilter{Clause: clause, Args: args}
}

// PageRequest describes pagination with an optional filter and ordering,
// e.g. orders of the form "id ASC" or "name DESC".
type PageRequest struct {
	Page     int
	PageSize int
	Filter   *QueryFilter
	Orders   []string
}

// NewPageRequest constructs a page request; page and size are clamped to
// sane minimums on use.
func NewPageRequest(page, pageSize int) *PageRequest {
	return &PageRequest{Page: page, PageSize: pageSize}
}

// WithFilter attaches a filter and returns the request for chaining.
func (p *PageRequest) WithFilter(filter *QueryFilter) *PageRequest {
	p.Filter = filter
	return p
}

// WithOrders attaches ordering clauses and returns the request for chaining.
func (p *PageRequest) WithOrders(orders ...string) *PageRequest {
	p.Orders = orders
	return p
}

// EffectivePage returns the 1-based page number.
func (p *PageRequest) EffectivePage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// EffectivePageSize returns the page size, defaulting to 10.
func (p *PageRequest) EffectivePageSize() int {
	if p.PageSize < 1 {
		return 10
	}
	return p.PageSize
}

// Offset returns the row offset for the request.
func (p *PageRequest) Offset() int {
	return (p.EffectivePage() - 1) * p.EffectivePageSize()
}

// Pagination holds one page of results along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// NewPagination constructs an empty pagination container for a request.
func NewPagination[T any](req *PageRequest) *Pagination[T] {
	return &Pagination[T]{
		Page:     req.EffectivePage(),
		PageSize: req.EffectivePageSize(),
		Items:    make([]*T, 0),
	}
}
