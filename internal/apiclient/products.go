package apiclient

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/AnnaKryuchkova/product-console/internal/model"
)

// FetchProducts lists one page of products. A non-blank search switches to
// the search endpoint.
func (c *Client) FetchProducts(ctx context.Context, q model.ProductQuery) (model.ProductsPage, error) {
	return Get[model.ProductsPage](ctx, c, ProductsPath(q))
}

// ProductsPath renders the listing path and query string for q.
func ProductsPath(q model.ProductQuery) string {
	v := url.Values{}
	path := "/products"
	if s := strings.TrimSpace(q.Search); s != "" {
		path = "/products/search"
		v.Set("q", s)
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("skip", strconv.Itoa(q.Skip))
	if q.SortBy != "" {
		v.Set("sortBy", string(q.SortBy))
	}
	if q.Order != "" {
		v.Set("order", string(q.Order))
	}
	return path + "?" + v.Encode()
}
