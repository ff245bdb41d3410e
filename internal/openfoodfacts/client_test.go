package openfoodfacts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cgi/search.pl", r.URL.Path)
		assert.Equal(t, "fromages", r.URL.Query().Get("tag_0"))
		assert.Equal(t, "20", r.URL.Query().Get("page_size"))
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 2, "products": [
			{"code": "1", "product_name": "Comté", "nutriscore_grade": "d", "nutriscore_score": 16, "countries": "France",
			 "nutriments": {"fat_value": 3.0, "fat_unit": "g"}},
			{"code": "2", "countries": "Italie"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(DefaultCatalog(),
		WithBaseURL(srv.URL),
		WithPageSize(20),
		WithUserAgent("test-agent"),
		WithTimeout(5*time.Second),
	)

	res, err := c.Search(context.Background(), "fromages")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total())
	require.Len(t, res.Products, 2)

	prod, ok := res.Products[0].ToProduct()
	require.True(t, ok)
	assert.Equal(t, "Comté", prod.Name)
	assert.Equal(t, "3.0g", prod.Fat, "numbers keep their written form")

	_, ok = res.Products[1].ToProduct()
	assert.False(t, ok)
}

func TestClient_Search_UnknownCategory(t *testing.T) {
	c := NewClient(DefaultCatalog())

	_, err := c.Search(context.Background(), "bonbons")
	assert.ErrorContains(t, err, "unknown category")
}

func TestClient_Search_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(DefaultCatalog(), WithBaseURL(srv.URL))

	_, err := c.Search(context.Background(), "riz")
	assert.ErrorContains(t, err, "status 429")
}

func TestClient_Search_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"products":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(DefaultCatalog(), WithBaseURL(srv.URL)).Search(ctx, "eaux")
	assert.Error(t, err)
}

func TestSearchResult_TotalMalformed(t *testing.T) {
	assert.Equal(t, 0, SearchResult{}.Total())
	assert.Equal(t, 0, SearchResult{Count: "many"}.Total())
	assert.Equal(t, 3, SearchResult{Count: "3"}.Total())
}
