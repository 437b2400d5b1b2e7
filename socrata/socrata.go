// Copyright 2025 CivicData

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/civicdata/inspections/dates"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the server. It may be overwritten in tests
// before creating a new client.
var URL = "https://data.cityofnewyork.us/resource"

// DefaultPageSize is the number of rows requested per page. Socrata servers
// default to 1000 rows per call.
const DefaultPageSize = 1000

// maxPageSize is the SODA 2.1 hard cap on $limit.
const maxPageSize = 50000

// Client for querying Socrata datasets.
type Client struct {
	baseURL  string // the base URL of the server
	appToken string // application token, sent as the $$app_token query parameter
}

// newClient creates a new client.
func newClient(baseURL, appToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		appToken: appToken,
	}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client based on the app token and injects it into
// the context.
func UseClient(ctx context.Context, appToken string) context.Context {
	return UseClientAt(ctx, URL, appToken)
}

// UseClientAt is UseClient for a non-default server base URL, e.g. an
// open-data portal of another city.
func UseClientAt(ctx context.Context, baseURL, appToken string) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(baseURL, appToken))
}

// Record is a single dataset row: a mapping from field name to an untyped
// scalar (string, number, bool or nil), exactly as decoded from the server's
// JSON. Fields absent from a row are simply missing from the map.
type Record map[string]any

// RowQuery is a builder for a dataset row query.
type RowQuery struct {
	dataset string // dataset identifier, e.g. "43nn-pn8j"
	where   string // SoQL $where clause
	order   string // SoQL $order clause
	limit   int    // page size
	offset  int    // running offset of the next page
}

// NewRowQuery creates a new query with the default page size.
func NewRowQuery(dataset string) *RowQuery {
	return &RowQuery{dataset: dataset, limit: DefaultPageSize}
}

// Copy creates a copy of the query. It is primarily used in its builder
// methods.
func (q *RowQuery) Copy() *RowQuery {
	q2 := *q
	return &q2
}

// Between adds an inclusive date-range filter on the given column. This and
// other builder methods always create a copy of the query, leaving the
// original intact.
func (q *RowQuery) Between(column string, start, end dates.Date) *RowQuery {
	q2 := q.Copy()
	q2.where = fmt.Sprintf("%s between '%s' and '%s'", column, start, end)
	return q2
}

// Where sets a raw SoQL $where clause.
func (q *RowQuery) Where(clause string) *RowQuery {
	q2 := q.Copy()
	q2.where = clause
	return q2
}

// Order sets the $order clause. A total order over the result set is required
// for offset paging to return each row exactly once.
func (q *RowQuery) Order(expr string) *RowQuery {
	q2 := q.Copy()
	q2.order = expr
	return q2
}

// Limit sets the page size, [1..50000].
func (q *RowQuery) Limit(size int) *RowQuery {
	if size < 1 {
		size = 1
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	q2 := q.Copy()
	q2.limit = size
	return q2
}

// Offset sets the starting offset of the next page.
func (q *RowQuery) Offset(n int) *RowQuery {
	if n < 0 {
		n = 0
	}
	q2 := q.Copy()
	q2.offset = n
	return q2
}

// Values returns the query values for the query. Each call creates a new
// object, so the caller is free to modify it without affecting the query.
func (q *RowQuery) Values() url.Values {
	v := make(url.Values)
	if q.where != "" {
		v["$where"] = []string{q.where}
	}
	if q.order != "" {
		v["$order"] = []string{q.order}
	}
	v["$limit"] = []string{strconv.Itoa(q.limit)}
	if q.offset > 0 {
		v["$offset"] = []string{strconv.Itoa(q.offset)}
	}
	return v
}

// readPage executes the query using the Client from the context and downloads
// one page of rows.
func (q *RowQuery) readPage(ctx context.Context) ([]Record, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("RowQuery.readPage: no client in context")
	}
	uri := client.baseURL + "/" + q.dataset + ".json"
	query := q.Values()
	if client.appToken != "" {
		query["$$app_token"] = []string{client.appToken}
	}
	var page []Record
	if err := fetch.FetchJSON(ctx, uri, &page, query, nil); err != nil {
		return nil, errors.Annotate(err, "failed to fetch %s at offset %d",
			q.dataset, q.offset)
	}
	return page, nil
}

// Read sets up the iterator over the result rows, which will execute the
// query as needed and handle paging transparently.
func (q *RowQuery) Read(ctx context.Context) *RowIterator {
	return newRowIterator(ctx, q)
}

// ReadAll fetches the complete result set for the query. A failure on any
// page discards the rows accumulated so far; the caller never receives a
// partial result as success.
func (q *RowQuery) ReadAll(ctx context.Context) ([]Record, error) {
	it := q.Read(ctx)
	rows := []Record{}
	for {
		r, ok, err := it.Next()
		if err != nil {
			return nil, errors.Annotate(err, "failed to read %s rows", q.dataset)
		}
		if !ok {
			break
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// RowIterator iterates over query results row by row. Paging is handled
// transparently.
type RowIterator struct {
	context   context.Context
	query     *RowQuery
	page      []Record
	index     int  // the row for Next() to return
	pageCount int  // which page number we're on, for logging
	started   bool // if at least one Next call was ever made
}

// newRowIterator creates a new iterator.
func newRowIterator(ctx context.Context, query *RowQuery) *RowIterator {
	return &RowIterator{context: ctx, query: query}
}

// nextPage fetches and populates the iterator with the next page of rows. A
// page shorter than the requested limit is the only exhaustion signal, so a
// result set of exactly N full pages costs N+1 requests. When there are no
// more pages to load, or loading a page results in an error, the first return
// value becomes false.
func (it *RowIterator) nextPage() (bool, error) {
	if it.started && len(it.page) < it.query.limit {
		return false, nil
	}
	if it.started {
		it.query = it.query.Offset(it.query.offset + it.query.limit)
	}
	it.started = true
	page, err := it.query.readPage(it.context)
	if err != nil {
		return false, errors.Annotate(err, "failed to query page %d", it.pageCount+1)
	}
	it.page = page
	it.index = 0
	it.pageCount++
	logging.Infof(it.context, "%s: fetched page %d with %d rows at offset %d",
		it.query.dataset, it.pageCount, len(page), it.query.offset)
	return true, nil
}

// Next loads the next row. If there are no more rows, the second value is
// false.
func (it *RowIterator) Next() (Record, bool, error) {
	if it.query == nil {
		return nil, false, nil
	}
	if !it.started || it.index >= len(it.page) {
		if ok, err := it.nextPage(); !ok {
			return nil, false, err
		}
	}
	if it.index >= len(it.page) {
		return nil, false, nil
	}
	r := it.page[it.index]
	it.index++
	return r, true, nil
}

// TestRowsPage generates the JSON string in the format returned by the SODA
// row API. For use in tests.
func TestRowsPage(rows []Record) (string, error) {
	bytes, err := json.Marshal(rows)
	return string(bytes), err
}
