// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crossref

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/pkg/types"
)

const workJSON = `{"status":"ok","message":{
	"title":["Deep Learning"],
	"author":[{"given":"Yann","family":"LeCun"},{"given":"Yoshua","family":"Bengio"},{"family":"Hinton"},{}],
	"published-online":{"date-parts":[[2015,5,27]]},
	"container-title":["Nature"],
	"DOI":"10.1038/NATURE14539",
	"URL":"http://dx.doi.org/10.1038/nature14539"
}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	c := NewClient(types.CrossrefConfig{BaseURL: ts.URL, RateLimit: 1000, Mailto: "ops@example.org"}, zap.NewNop(), nil)
	return c, &calls
}

func TestLookup(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/10.1038/nature14539", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "mailto:ops@example.org")
		fmt.Fprint(w, workJSON)
	})

	rec, ok := c.Lookup(context.Background(), "10.1038/nature14539")
	require.True(t, ok)
	assert.Equal(t, "Deep Learning", rec.Title)
	assert.Equal(t, []string{"Yann LeCun", "Yoshua Bengio", "Hinton"}, rec.Authors)
	assert.Equal(t, types.Year("2015"), rec.Year)
	assert.Equal(t, "Nature", rec.Journal)
	assert.Equal(t, "10.1038/nature14539", rec.DOI)
	assert.Equal(t, "http://dx.doi.org/10.1038/nature14539", rec.URL)

	rec.Authors[0] = "mutated"
	again, ok := c.Lookup(context.Background(), "10.1038/NATURE14539")
	require.True(t, ok)
	assert.Equal(t, "Yann LeCun", again.Authors[0], "cached record must not be aliased")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	assert.True(t, c.VerifyDOI(context.Background(), "10.1038/nature14539"))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "verify reuses the cached lookup")
}

func TestLookup_PrintYearPreferred(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"message":{"title":["T"],"published-print":{"date-parts":[[2001]]},"published-online":{"date-parts":[[2000]]}}}`)
	})
	rec, ok := c.Lookup(context.Background(), "10.1/x")
	require.True(t, ok)
	assert.Equal(t, types.Year("2001"), rec.Year)
}

func TestLookup_AuthorCap(t *testing.T) {
	var authors []string
	for i := 0; i < 12; i++ {
		authors = append(authors, fmt.Sprintf(`{"given":"G%d","family":"F%d"}`, i, i))
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"message":{"author":[%s]}}`, strings.Join(authors, ","))
	})
	rec, ok := c.Lookup(context.Background(), "10.1/many")
	require.True(t, ok)
	assert.Len(t, rec.Authors, 10)
}

func TestLookup_NotFoundIsCached(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, ok := c.Lookup(context.Background(), "10.1/missing")
	assert.False(t, ok)
	_, ok = c.Lookup(context.Background(), "10.1/missing")
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.False(t, c.VerifyDOI(context.Background(), "10.1/missing"))
}

func TestLookup_ServerErrorNotCached(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, ok := c.Lookup(context.Background(), "10.1/flaky")
	assert.False(t, ok)
	_, ok = c.Lookup(context.Background(), "10.1/flaky")
	assert.False(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestSearch(t *testing.T) {
	text := "LeCun Y, Bengio Y, Hinton G. Deep learning. Nature 2015;521:436-44."
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, text, r.URL.Query().Get("query.bibliographic"))
		assert.Equal(t, "1", r.URL.Query().Get("rows"))
		fmt.Fprint(w, `{"message":{"items":[{"title":["Deep learning"],"DOI":"10.1038/Nature14539","published-print":{"date-parts":[[2015]]}}]}}`)
	})

	rec, ok := c.Search(context.Background(), text)
	require.True(t, ok)
	assert.Equal(t, "Deep learning", rec.Title)
	assert.Equal(t, "10.1038/nature14539", rec.DOI)
	assert.Equal(t, types.Year("2015"), rec.Year)

	_, ok = c.Search(context.Background(), "too short")
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSearch_NoItems(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"message":{"items":[]}}`)
	})
	_, ok := c.Search(context.Background(), strings.Repeat("reference text ", 5))
	assert.False(t, ok)
}

func TestVerifyDOI(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/live") {
			fmt.Fprint(w, `{}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.True(t, c.VerifyDOI(context.Background(), "10.1/live"))
	assert.False(t, c.VerifyDOI(context.Background(), "10.1/dead"))
	assert.False(t, c.VerifyDOI(context.Background(), " "))
}
