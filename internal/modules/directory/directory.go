// Package directory wraps the public drug directory API
// (DrbEasyDrugInfoService). The live API speaks Korean field names in camel
// case; everything is mapped to typed structs at this boundary.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnavailable wraps any network, HTTP or decode failure of the upstream
// API. Live search surfaces it as a gateway error; batch jobs retry.
var ErrUnavailable = errors.New("drug directory unavailable")

// Item is one raw medicine record from the directory. Every field except the
// name may be absent upstream.
type Item struct {
	ItemName        string `json:"itemName"`
	EfcyQesitm      string `json:"efcyQesitm"`
	ItemImage       string `json:"itemImage"`
	AtpnQesitm      string `json:"atpnQesitm"`
	IntrcQesitm     string `json:"intrcQesitm"`
	UseMethodQesitm string `json:"useMethodQesitm"`
	SeQesitm        string `json:"seQesitm"`
}

// Page is one page of directory results.
type Page struct {
	TotalCount int
	Items      []Item
}

// Filters narrows a page fetch to a name or efficacy-keyword match.
// At most one of the two should be set.
type Filters struct {
	ItemName   string
	EfcyQesitm string
}

// Client calls the paginated directory API.
type Client struct {
	endpoint   string
	serviceKey string
	http       *http.Client
}

// New creates a directory client. timeout bounds each request; live search
// uses ~10s, batch jobs may pass a longer budget.
func New(endpoint, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type pageEnvelope struct {
	Body struct {
		TotalCount int    `json:"totalCount"`
		Items      []Item `json:"items"`
	} `json:"body"`
}

// FetchPage retrieves one page of drug records.
func (c *Client) FetchPage(ctx context.Context, pageNo, pageSize int, f Filters) (*Page, error) {
	q := url.Values{}
	q.Set("serviceKey", c.serviceKey)
	q.Set("type", "json")
	q.Set("numOfRows", strconv.Itoa(pageSize))
	q.Set("pageNo", strconv.Itoa(pageNo))
	if f.ItemName != "" {
		q.Set("itemName", f.ItemName)
	}
	if f.EfcyQesitm != "" {
		q.Set("efcyQesitm", f.EfcyQesitm)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var envelope pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	return &Page{
		TotalCount: envelope.Body.TotalCount,
		Items:      envelope.Body.Items,
	}, nil
}
