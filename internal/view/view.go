// Package view renders console output: the product table, pagination, the
// error banner, form errors and the current session.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/AnnaKryuchkova/product-console/internal/form"
	"github.com/AnnaKryuchkova/product-console/internal/model"
)

const (
	emptyCell  = "—"
	lowRating  = 3.0
	maxTitle   = 40
	loadingMsg = "Loading products..."
	noneMsg    = "No products found"
)

// Listing renders the whole listing screen: banner, table and pagination.
func Listing(w io.Writer, s model.ListingState) error {
	if s.LastError != "" {
		Banner(w, s.LastError)
	}
	if err := Table(w, s); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, Pagination(s))
	return err
}

// Banner prints a load error above the table.
func Banner(w io.Writer, msg string) {
	fmt.Fprintf(w, "! Failed to load products: %s\n", msg)
}

// Table renders the product rows. While loading, the rows are replaced by a
// progress line; an empty result prints a placeholder.
func Table(w io.Writer, s model.ListingState) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\tBRAND\tSKU\t%s\t%s\tSTOCK\n",
		header("TITLE", model.SortByTitle, s),
		header("RATING", model.SortByRating, s),
		header("PRICE", model.SortByPrice, s),
	)
	switch {
	case s.Loading:
		fmt.Fprintln(tw, loadingMsg)
	case len(s.Items) == 0:
		fmt.Fprintln(tw, noneMsg)
	default:
		for _, p := range s.Items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\t%d\n",
				p.ID, titleCell(p), orEmpty(p.Brand), orEmpty(p.SKU), ratingCell(p.Rating), p.Price, p.Stock)
		}
	}
	return tw.Flush()
}

// Pagination summarises position and row counts.
func Pagination(s model.ListingState) string {
	return fmt.Sprintf("Page %d of %d · Showing %d of %d", s.Page, s.PageCount(), len(s.Items), s.Total)
}

func header(label string, f model.SortField, s model.ListingState) string {
	if s.SortField != f {
		return label
	}
	if s.SortDir == model.SortDesc {
		return label + " ▼"
	}
	return label + " ▲"
}

func titleCell(p model.Product) string {
	t := truncate(p.Title, maxTitle)
	if p.Category != "" {
		t += " (" + p.Category + ")"
	}
	return t
}

func ratingCell(r float64) string {
	cell := fmt.Sprintf("%.1f/5", r)
	if r > 0 && r < lowRating {
		cell += " !"
	}
	return cell
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return emptyCell
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Product prints every field of a single product.
func Product(w io.Writer, p model.Product) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	rows := [][2]string{
		{"id", fmt.Sprint(p.ID)},
		{"title", p.Title},
		{"description", orEmpty(p.Description)},
		{"category", orEmpty(p.Category)},
		{"brand", orEmpty(p.Brand)},
		{"sku", orEmpty(p.SKU)},
		{"price", fmt.Sprintf("%.2f", p.Price)},
		{"discount", fmt.Sprintf("%.2f%%", p.DiscountPercentage)},
		{"rating", ratingCell(p.Rating)},
		{"stock", fmt.Sprint(p.Stock)},
		{"thumbnail", orEmpty(p.Thumbnail)},
		{"images", fmt.Sprint(len(p.Images))},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

// FormErrors prints one line per invalid field, sorted by field name.
func FormErrors(w io.Writer, e form.Errors) {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, e[k])
	}
}

// Session describes the signed-in state for whoami.
type Session struct {
	State      string
	User       *model.User
	Persistent bool
	Expires    time.Time // zero if unknown
}

// Whoami prints the session summary.
func Whoami(w io.Writer, s Session, now time.Time) {
	if s.User == nil {
		fmt.Fprintf(w, "state: %s\n", s.State)
		return
	}
	u := s.User
	fmt.Fprintf(w, "user: %s (%s %s) id=%d\n", u.Username, u.FirstName, u.LastName, u.ID)
	if u.Email != "" {
		fmt.Fprintf(w, "email: %s\n", u.Email)
	}
	lifetime := "session"
	if s.Persistent {
		lifetime = "persistent"
	}
	fmt.Fprintf(w, "tokens: %s\n", lifetime)
	if !s.Expires.IsZero() {
		left := s.Expires.Sub(now).Round(time.Second)
		if left <= 0 {
			fmt.Fprintf(w, "access token: expired at %s\n", s.Expires.Format(time.RFC3339))
		} else {
			fmt.Fprintf(w, "access token: expires in %s\n", left)
		}
	}
}
