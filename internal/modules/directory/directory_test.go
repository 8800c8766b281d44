package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPageParsesEnvelope(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"serviceKey": r.URL.Query().Get("serviceKey"),
			"type":       r.URL.Query().Get("type"),
			"numOfRows":  r.URL.Query().Get("numOfRows"),
			"pageNo":     r.URL.Query().Get("pageNo"),
			"itemName":   r.URL.Query().Get("itemName"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"body": {
				"totalCount": 2,
				"items": [
					{"itemName": "타이레놀정", "efcyQesitm": "두통, 발열에 사용", "itemImage": "https://img.example/1.jpg"},
					{"itemName": "판콜에이", "efcyQesitm": "감기 증상 완화"}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key", 5*time.Second)
	page, err := c.FetchPage(context.Background(), 3, 50, Filters{ItemName: "타이레놀"})
	require.NoError(t, err)

	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "타이레놀정", page.Items[0].ItemName)
	assert.Equal(t, "https://img.example/1.jpg", page.Items[0].ItemImage)

	assert.Equal(t, "secret-key", gotQuery["serviceKey"])
	assert.Equal(t, "json", gotQuery["type"])
	assert.Equal(t, "50", gotQuery["numOfRows"])
	assert.Equal(t, "3", gotQuery["pageNo"])
	assert.Equal(t, "타이레놀", gotQuery["itemName"])
}

func TestFetchPageOmitsEmptyFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("itemName"))
		assert.False(t, r.URL.Query().Has("efcyQesitm"))
		w.Write([]byte(`{"body": {"totalCount": 0, "items": []}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 5*time.Second)
	page, err := c.FetchPage(context.Background(), 1, 10, Filters{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
	assert.Empty(t, page.Items)
}

func TestFetchPageHTTPErrorWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 5*time.Second)
	_, err := c.FetchPage(context.Background(), 1, 10, Filters{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchPageMalformedBodyWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<OpenAPI_ServiceResponse>limit exceeded</OpenAPI_ServiceResponse>`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 5*time.Second)
	_, err := c.FetchPage(context.Background(), 1, 10, Filters{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchPageConnectionRefusedWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "key", time.Second)
	_, err := c.FetchPage(context.Background(), 1, 10, Filters{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
