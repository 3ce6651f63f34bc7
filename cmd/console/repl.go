package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/AnnaKryuchkova/product-console/internal/app"
	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/form"
	"github.com/AnnaKryuchkova/product-console/internal/model"
	"github.com/AnnaKryuchkova/product-console/internal/service"
	"github.com/AnnaKryuchkova/product-console/internal/view"
)

const prompt = "> "

const replHelp = `commands:
  login -u <username> -p <password> [-remember]
  guest
  logout
  whoami
  search <text>              (empty text clears the search)
  sort <title|price|rating> [asc|desc]
  page <n> | next | prev
  refresh
  show [id]
  add -title <t> -price <p> [-brand <b>] [-sku <s>]
  edit -id <n> [-title <t>] [-price <p>] [-brand <b>] [-sku <s>]
  help
  quit
`

// console runs commands against one App. In interactive mode the listing is
// redrawn whenever a fetch or local edit settles.
type console struct {
	app    *app.App
	out    io.Writer
	errOut io.Writer

	interactive bool
	listing     *service.ProductList
	unsubscribe func()
}

func newConsole(a *app.App, out, errOut io.Writer) *console {
	return &console{app: a, out: out, errOut: errOut}
}

// products returns the listing controller, creating it on first use.
func (c *console) products() *service.ProductList {
	if c.listing == nil {
		c.listing = c.app.NewProductList()
		if c.interactive {
			c.unsubscribe = c.listing.Subscribe(c.onState)
		}
	}
	return c.listing
}

// onState redraws on every idle snapshot: each one ends a fetch or a local edit.
func (c *console) onState(s model.ListingState) {
	if s.Loading || s.Submitting {
		return
	}
	var buf bytes.Buffer
	_ = view.Listing(&buf, s)
	_, _ = c.out.Write(buf.Bytes())
}

func (c *console) dropListing() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.listing != nil {
		c.listing.Close()
		c.listing = nil
	}
}

// settle fires a pending search and waits for every fetch to land.
func (c *console) settle() {
	if c.listing == nil {
		return
	}
	c.listing.Flush()
	c.listing.Wait()
}

// close cancels whatever is still in flight and stops rendering.
func (c *console) close() {
	if c.listing != nil {
		c.listing.Close()
		c.listing.Wait()
	}
	c.dropListing()
}

func (c *console) repl(ctx context.Context, in io.Reader) error {
	c.interactive = true
	fmt.Fprintln(c.out, "product console, type help for commands")
	if c.app.Session.IsAuthenticated() {
		c.whoami()
		c.products().Load()
		c.products().Wait()
	} else {
		fmt.Fprintln(c.out, "not signed in: login -u USER -p PASS, or guest")
	}

	sc := bufio.NewScanner(in)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, prompt)
		var line string
		var ok bool
		select {
		case line, ok = <-lines:
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		}
		if !ok {
			fmt.Fprintln(c.out)
			c.settle()
			return sc.Err()
		}

		args, err := splitLine(line)
		if err != nil {
			fmt.Fprintln(c.errOut, err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			c.settle()
			return nil
		}
		if err := c.exec(ctx, args); err != nil {
			c.explain(err)
		}
	}
}

// explain prints a console command error without leaving the loop.
func (c *console) explain(err error) {
	switch {
	case errors.Is(err, errUsage), errors.Is(err, errShown):
	case errors.Is(err, errs.ErrValidation):
		c.formErrors(err)
	case errors.Is(err, errs.ErrNotAuthenticated):
		fmt.Fprintln(c.errOut, "login required: login -u USER -p PASS, or guest")
	default:
		fmt.Fprintln(c.errOut, failureText(err))
	}
}

func (c *console) exec(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprint(c.out, replHelp)
		return nil
	case "login":
		if err := c.login(ctx, rest); err != nil {
			return err
		}
		c.dropListing()
		c.products().Load()
		c.products().Wait()
		return nil
	case "guest":
		c.app.Session.LoginAsGuest()
		fmt.Fprintln(c.out, "browsing as guest")
		c.products().Load()
		c.products().Wait()
		return nil
	case "logout":
		return c.logout(ctx)
	case "whoami":
		c.whoami()
		return nil
	}

	if err := c.app.Session.RequireAuth(); err != nil {
		if !isListingCommand(cmd) {
			return c.unknown(cmd)
		}
		return err
	}
	l := c.products()

	switch cmd {
	case "search":
		l.SetSearch(strings.Join(rest, " "))
		return nil
	case "sort":
		if len(rest) < 1 || len(rest) > 2 {
			fmt.Fprintln(c.errOut, "usage: sort <title|price|rating> [asc|desc]")
			return errUsage
		}
		field, err := model.ParseSortField(rest[0])
		if err != nil {
			return err
		}
		if len(rest) == 1 {
			l.ToggleSort(field)
		} else {
			dir, err := model.ParseSortDirection(rest[1])
			if err != nil {
				return err
			}
			l.SetSort(field, dir)
		}
		l.Wait()
		return nil
	case "page":
		if len(rest) != 1 {
			fmt.Fprintln(c.errOut, "usage: page <n>")
			return errUsage
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(c.errOut, "page: %q is not a number\n", rest[0])
			return errUsage
		}
		return c.gotoPage(n)
	case "next":
		return c.gotoPage(l.Snapshot().Page + 1)
	case "prev":
		return c.gotoPage(l.Snapshot().Page - 1)
	case "refresh":
		l.Refresh()
		l.Wait()
		return nil
	case "show":
		return c.show(rest)
	case "add":
		return c.add(ctx, rest)
	case "edit":
		return c.edit(ctx, rest)
	}
	return c.unknown(cmd)
}

func isListingCommand(cmd string) bool {
	switch cmd {
	case "search", "sort", "page", "next", "prev", "refresh", "show", "add", "edit":
		return true
	}
	return false
}

func (c *console) unknown(cmd string) error {
	fmt.Fprintf(c.errOut, "unknown command %q, type help\n", cmd)
	return errUsage
}

func (c *console) gotoPage(n int) error {
	l := c.products()
	if err := l.SetPage(n); err != nil {
		return err
	}
	l.Wait()
	return nil
}

func (c *console) show(args []string) error {
	s := c.products().Snapshot()
	if len(args) == 0 {
		return view.Listing(c.out, s)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(c.errOut, "show: %q is not a product id\n", args[0])
		return errUsage
	}
	for _, p := range s.Items {
		if p.ID == id {
			return view.Product(c.out, p)
		}
	}
	return fmt.Errorf("product %d is not on this page: %w", id, errs.ErrNotFound)
}

func (c *console) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var in form.Product
	fs.StringVar(&in.Title, "title", "", "product title")
	fs.StringVar(&in.Price, "price", "", "price")
	fs.StringVar(&in.Brand, "brand", "", "brand")
	fs.StringVar(&in.SKU, "sku", "", "stock keeping unit")
	if err := c.parseFlags(fs, args); err != nil {
		return err
	}

	valid, err := c.app.Validator.ValidateProduct(in)
	if err != nil {
		return err
	}
	created, err := c.products().CreateProductItem(ctx, valid)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created product %d\n", created.ID)
	return nil
}

func (c *console) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.Int64("id", 0, "product id")
	fs.String("title", "", "new title")
	fs.String("price", "", "new price")
	fs.String("brand", "", "new brand")
	fs.String("sku", "", "new stock keeping unit")
	if err := c.parseFlags(fs, args); err != nil {
		return err
	}
	if *id == 0 {
		fmt.Fprintln(c.errOut, "edit: -id is required")
		return errUsage
	}

	// only flags given on the line take part in the patch
	var in form.ProductPatch
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "title":
			in.Title = &v
		case "price":
			in.Price = &v
		case "brand":
			in.Brand = &v
		case "sku":
			in.SKU = &v
		}
	})
	if in == (form.ProductPatch{}) {
		fmt.Fprintln(c.errOut, "edit: nothing to change")
		return errUsage
	}

	patch, err := c.app.Validator.ValidateProductPatch(in)
	if err != nil {
		return err
	}
	found, err := c.products().UpdateProductItem(ctx, *id, patch)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("product %d is not on this page: %w", *id, errs.ErrNotFound)
	}
	return nil
}

// splitLine splits a console line into words. Single and double quotes group
// words; a backslash escapes the next rune outside single quotes.
func splitLine(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// lockedWriter serialises writes from the console loop, background fetches
// and the notifier.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func syncWriters(out, errOut io.Writer) (io.Writer, io.Writer) {
	mu := &sync.Mutex{}
	return lockedWriter{mu: mu, w: out}, lockedWriter{mu: mu, w: errOut}
}
