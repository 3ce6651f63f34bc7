package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnnaKryuchkova/product-console/internal/form"
	"github.com/AnnaKryuchkova/product-console/internal/model"
)

func listing() model.ListingState {
	return model.ListingState{
		Items: []model.Product{
			{ID: 1, Title: "Essence Mascara", Category: "beauty", Brand: "Essence", SKU: "RCH45Q1A", Rating: 4.94, Price: 9.99, Stock: 5},
			{ID: 2, Title: "Widget", Rating: 2.5, Price: 1},
		},
		Total:     95,
		Page:      2,
		PageSize:  10,
		SortField: model.SortByPrice,
		SortDir:   model.SortDesc,
	}
}

func TestListing(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Listing(&buf, listing()))
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "PRICE ▼")
	assert.NotContains(t, lines[0], "TITLE ▲")
	assert.Contains(t, lines[1], "Essence Mascara (beauty)")
	assert.Contains(t, lines[1], "4.9/5")
	assert.Contains(t, lines[1], "9.99")
	assert.Contains(t, lines[2], "—")
	assert.Contains(t, lines[2], "2.5/5 !")
	assert.Equal(t, "Page 2 of 10 · Showing 2 of 95", lines[3])
	assert.NotContains(t, out, "Failed to load")
}

func TestListing_ErrorBannerKeepsTable(t *testing.T) {
	t.Parallel()
	s := listing()
	s.LastError = "Request failed"
	var buf bytes.Buffer
	require.NoError(t, Listing(&buf, s))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "! Failed to load products: Request failed\n"))
	assert.Contains(t, out, "Essence Mascara")
}

func TestTable_LoadingAndEmpty(t *testing.T) {
	t.Parallel()
	s := listing()
	s.Loading = true
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, s))
	assert.Contains(t, buf.String(), loadingMsg)
	assert.NotContains(t, buf.String(), "Essence")

	buf.Reset()
	require.NoError(t, Table(&buf, model.ListingState{Page: 1, SortField: model.SortByTitle, SortDir: model.SortAsc}))
	assert.Contains(t, buf.String(), "TITLE ▲")
	assert.Contains(t, buf.String(), noneMsg)
}

func TestPagination_EmptyHasOnePage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Page 1 of 1 · Showing 0 of 0", Pagination(model.ListingState{Page: 1, PageSize: 10}))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestProduct(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Product(&buf, model.Product{ID: 7, Title: "Lamp", Price: 12.5, Images: []string{"a", "b"}}))
	out := buf.String()
	assert.Contains(t, out, "title:")
	assert.Contains(t, out, "Lamp")
	assert.Contains(t, out, "12.50")
	assert.Regexp(t, `images:\s+2`, out)
}

func TestFormErrors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	FormErrors(&buf, form.Errors{"title": "Enter the product title", "price": "Enter a valid price"})
	assert.Equal(t, "  price: Enter a valid price\n  title: Enter the product title\n", buf.String())
}

func TestWhoami(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	Whoami(&buf, Session{State: "guest"}, now)
	assert.Equal(t, "state: guest\n", buf.String())

	buf.Reset()
	Whoami(&buf, Session{
		State:      "authenticated",
		User:       &model.User{ID: 1, Username: "emilys", FirstName: "Emily", LastName: "Johnson", Email: "emily@x.dev"},
		Persistent: true,
		Expires:    now.Add(30 * time.Minute),
	}, now)
	out := buf.String()
	assert.Contains(t, out, "user: emilys (Emily Johnson) id=1")
	assert.Contains(t, out, "tokens: persistent")
	assert.Contains(t, out, "expires in 30m0s")
}
