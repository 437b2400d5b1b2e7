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
	"fmt"
	"net/url"
	"testing"

	"github.com/civicdata/inspections/dates"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

// testRecord generates a distinguishable row for paging tests.
func testRecord(i int) Record {
	return Record{
		"camis": fmt.Sprintf("%06d", i),
		"boro":  "Queens",
	}
}

// testRecords generates rows [from, to).
func testRecords(from, to int) []Record {
	rows := []Record{}
	for i := from; i < to; i++ {
		rows = append(rows, testRecord(i))
	}
	return rows
}

// pageBodies splits total rows into JSON pages of pageSize, always appending
// the final short (possibly empty) page.
func pageBodies(total, pageSize int) []string {
	bodies := []string{}
	for from := 0; ; from += pageSize {
		to := from + pageSize
		if to > total {
			to = total
		}
		page, err := TestRowsPage(testRecords(from, to))
		if err != nil {
			panic(err)
		}
		bodies = append(bodies, page)
		if to-from < pageSize {
			return bodies
		}
	}
}

func TestSocrata(t *testing.T) {
	t.Parallel()

	Convey("RowQuery builds nondestructively", t, func() {
		Convey("Between and Order", func() {
			q := NewRowQuery("43nn-pn8j")
			q2 := q.Between("inspection_date",
				dates.NewDate(2025, 5, 3), dates.NewDate(2025, 8, 1))
			q3 := q2.Order("inspection_date DESC, camis")
			So(q.Values(), ShouldResemble, url.Values{"$limit": []string{"1000"}})
			So(q2.Values(), ShouldResemble, url.Values{
				"$where": []string{"inspection_date between '2025-05-03' and '2025-08-01'"},
				"$limit": []string{"1000"},
			})
			So(q3.Values()["$order"], ShouldResemble, []string{"inspection_date DESC, camis"})
		})

		Convey("Where", func() {
			q := NewRowQuery("tbl").Where("score > 10")
			So(q.Values()["$where"], ShouldResemble, []string{"score > 10"})
		})

		Convey("Limit clamps to the valid range", func() {
			q := NewRowQuery("tbl")
			So(q.Limit(500).Values()["$limit"], ShouldResemble, []string{"500"})
			So(q.Limit(0).Values()["$limit"], ShouldResemble, []string{"1"})
			So(q.Limit(-5).Values()["$limit"], ShouldResemble, []string{"1"})
			So(q.Limit(100_000).Values()["$limit"], ShouldResemble, []string{"50000"})
		})

		Convey("Offset is omitted for the first page", func() {
			q := NewRowQuery("tbl")
			So(q.Values()["$offset"], ShouldBeNil)
			So(q.Offset(2000).Values()["$offset"], ShouldResemble, []string{"2000"})
		})
	})

	Convey("Paging over the API works correctly", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()

		ctx := fetch.UseClient(context.Background(), server.Client())
		URL = server.URL() + "/resource"
		ctx = UseClient(ctx, "testtoken")

		pageSize := 2
		q := NewRowQuery("43nn-pn8j").Limit(pageSize)

		Convey("empty result set", func() {
			server.ResponseBody = pageBodies(0, pageSize)
			rows, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []Record{})
			So(server.RequestPath, ShouldEqual, "/resource/43nn-pn8j.json")
		})

		Convey("the app token is sent as a query parameter", func() {
			server.ResponseBody = pageBodies(1, pageSize)
			_, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(server.RequestQuery["$$app_token"], ShouldResemble, []string{"testtoken"})
			// The token never leaks into the query builder itself.
			So(q.Values()["$$app_token"], ShouldBeNil)

			Convey("and omitted for a tokenless client", func() {
				server.ResponseBody = pageBodies(1, pageSize)
				_, err := q.ReadAll(UseClient(ctx, ""))
				So(err, ShouldBeNil)
				So(server.RequestQuery["$$app_token"], ShouldBeNil)
			})
		})

		Convey("single short page", func() {
			server.ResponseBody = pageBodies(1, pageSize)
			rows, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, testRecords(0, 1))
			So(server.RequestQuery["$offset"], ShouldBeNil)
		})

		Convey("exactly one full page costs one extra call", func() {
			server.ResponseBody = pageBodies(2, pageSize)
			rows, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, testRecords(0, 2))
			// The trailing empty page was requested at the next offset.
			So(server.RequestQuery["$offset"], ShouldResemble, []string{"2"})
		})

		Convey("two full pages", func() {
			server.ResponseBody = pageBodies(4, pageSize)
			rows, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, testRecords(0, 4))
			So(server.RequestQuery["$offset"], ShouldResemble, []string{"4"})
		})

		Convey("two full pages and a remainder, in offset order", func() {
			server.ResponseBody = pageBodies(5, pageSize)
			rows, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, testRecords(0, 5))
			So(server.RequestQuery["$offset"], ShouldResemble, []string{"4"})
		})

		Convey("full+empty pages equal a single short page", func() {
			server.ResponseBody = pageBodies(2, pageSize) // 2 rows + empty page
			paged, err := q.ReadAll(ctx)
			So(err, ShouldBeNil)

			server2 := testutil.NewTestServer()
			defer server2.Close()
			server2.ResponseBody = pageBodies(2, 3) // one short page of 2 rows
			ctx2 := fetch.UseClient(context.Background(), server2.Client())
			URL = server2.URL() + "/resource"
			ctx2 = UseClient(ctx2, "testtoken")
			direct, err := NewRowQuery("43nn-pn8j").Limit(3).ReadAll(ctx2)
			So(err, ShouldBeNil)
			So(paged, ShouldResemble, direct)
		})

		Convey("a page failure discards accumulated rows", func() {
			full, err := TestRowsPage(testRecords(0, 2))
			So(err, ShouldBeNil)
			// The second page is not a JSON array, so decoding it fails.
			server.ResponseBody = []string{full, `{"error": "rate limited"}`}
			rows, err := q.ReadAll(ctx)
			So(err, ShouldNotBeNil)
			So(rows, ShouldBeNil)
			So(err.Error(), ShouldContainSubstring, "page 2")
			So(err.Error(), ShouldContainSubstring, "offset 2")
		})

		Convey("streaming iterator yields rows one at a time", func() {
			server.ResponseBody = pageBodies(3, pageSize)
			it := q.Read(ctx)
			for i := 0; i < 3; i++ {
				r, ok, err := it.Next()
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(r, ShouldResemble, testRecord(i))
			}
			_, ok, err := it.Next()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("missing client in context is an error", t, func() {
		_, err := NewRowQuery("tbl").ReadAll(context.Background())
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "no client in context")
	})
}
