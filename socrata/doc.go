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

// Package socrata implements the row API of a Socrata open-data server
// (SODA).
//
// Official documentation is at https://dev.socrata.com/docs/queries/ .
//
// A dataset has no schema known in advance: each row arrives as a JSON object
// mapping field names to scalars, and different rows of the same dataset may
// carry different field sets. Rows are therefore modeled as dynamic Record
// maps rather than typed structs.
//
// The API returns at most one page of rows per request, selected by $limit
// and $offset. The server signals exhaustion only implicitly: a page shorter
// than the requested limit means there are no further rows, and a result set
// whose size is an exact multiple of the page size costs one extra short (or
// empty) request. RowIterator implements this paging transparently, always
// requesting pages in increasing offset order.
package socrata
