package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Page caps bound how far a cursor is followed.
const (
	MaxAccountPages      = 50
	MaxInsightsPages     = 200
	MaxDemographicsPages = 50
)

type page struct {
	Data   []map[string]any `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// paginate follows paging.next until it is absent or maxPages pages were
// read. The next URL already carries every parameter, so query is only sent
// with the first page.
func (c *Client) paginate(ctx context.Context, endpoint, firstURL string, query url.Values, resource string, maxPages int) ([]map[string]any, error) {
	var rows []map[string]any
	next := firstURL
	for pages := 0; next != "" && pages < maxPages; pages++ {
		var p page
		err := c.do(ctx, call{
			endpoint: endpoint,
			method:   http.MethodGet,
			url:      next,
			query:    query,
			resource: resource,
		}, &p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, p.Data...)

		next = strings.TrimSpace(p.Paging.Next)
		query = nil
	}
	return rows, nil
}
