// Command pc is a terminal console for browsing and editing the product
// catalogue of a DummyJSON-compatible service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AnnaKryuchkova/product-console/internal/apiclient"
	"github.com/AnnaKryuchkova/product-console/internal/app"
	"github.com/AnnaKryuchkova/product-console/internal/config"
	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/form"
	"github.com/AnnaKryuchkova/product-console/internal/model"
	"github.com/AnnaKryuchkova/product-console/internal/notify"
	"github.com/AnnaKryuchkova/product-console/internal/service"
	"github.com/AnnaKryuchkova/product-console/internal/view"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const invalidCredentials = "Invalid username or password. Try again."

// errUsage marks bad command-line input; it maps to exit code 2.
var errUsage = errors.New("usage")

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprint(w, `pc - product console
Usage:
  pc [global flags] <cmd> [args]

Commands:
  version
  login    -u <username> -p <password> [-remember]
  guest                                        (console in guest mode)
  logout
  whoami
  list     [-q text] [-sort title|price|rating] [-order asc|desc] [-page n] [-guest]
  console                                      (interactive)

Global flags (also PC_* environment variables):
`)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process: it returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fs := flag.NewFlagSet("pc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		usage(stderr, fs)
		return 2
	}
	if fs.NArg() < 1 {
		usage(stderr, fs)
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "pc %s (%s)\n", version, buildDate)
		return 0
	case "login", "list":
	case "guest", "logout", "whoami", "console":
		if len(rest) > 0 {
			fmt.Fprintf(stderr, "%s: unexpected argument %q\n", cmd, rest[0])
			return 2
		}
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr, fs)
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	out, errOut := syncWriters(stdout, stderr)
	log := newLogger(cfg.Log, errOut)
	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, cfg, app.Options{Logger: log, Notifier: notify.NewPrinter(errOut)})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()
	if cfg.MetricsAddr != "" {
		if _, err := a.ServeMetrics(cfg.MetricsAddr); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
	a.Session.Init(initCtx)
	cancel()

	c := newConsole(a, out, errOut)
	defer c.close()

	switch cmd {
	case "login":
		err = c.login(ctx, rest)
	case "guest":
		a.Session.LoginAsGuest()
		err = c.repl(ctx, stdin)
	case "logout":
		err = c.logout(ctx)
	case "whoami":
		c.whoami()
	case "list":
		err = c.list(rest)
	case "console":
		err = c.repl(ctx, stdin)
	}
	return c.report(err)
}

// newLogger writes JSON (or the development console format) to w.
func newLogger(c config.LogConfig, w io.Writer) *zap.Logger {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}
	var enc zapcore.Encoder
	if c.Dev {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Named("pc")
}

// report prints err for the one-shot commands and maps it to an exit code.
func (c *console) report(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errShown):
		return 1
	case errors.Is(err, errs.ErrValidation):
		c.formErrors(err)
		return 2
	default:
		fmt.Fprintln(c.errOut, failureText(err))
		return 1
	}
}

// failureText is the user-facing line for a command error.
func failureText(err error) string {
	var he *apiclient.HTTPError
	switch {
	case errors.Is(err, errs.ErrNotAuthenticated):
		return "login required (pc login -u USER -p PASS, or pc guest)"
	case errors.As(err, &he):
		return he.Message
	}
	return err.Error()
}

func (c *console) formErrors(err error) {
	var fe form.Errors
	if errors.As(err, &fe) {
		fmt.Fprintln(c.errOut, "invalid input:")
		view.FormErrors(c.errOut, fe)
		return
	}
	fmt.Fprintln(c.errOut, err)
}

// parseFlags parses a subcommand's flags; a parse failure is a usage error.
func (c *console) parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(c.errOut)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", fs.Name(), errUsage)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(c.errOut, "%s: unexpected argument %q\n", fs.Name(), fs.Arg(0))
		return fmt.Errorf("%s: %w", fs.Name(), errUsage)
	}
	return nil
}

func (c *console) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	remember := fs.Bool("remember", false, "keep the session after restarts")
	if err := c.parseFlags(fs, args); err != nil {
		return err
	}

	in, err := c.app.Validator.ValidateLogin(form.Login{Username: *u, Password: *p, RememberMe: *remember})
	if err != nil {
		return err
	}
	user, err := c.app.Session.Login(ctx, in.Username, in.Password, in.RememberMe)
	if err != nil {
		var he *apiclient.HTTPError
		if errors.As(err, &he) {
			return errors.New(invalidCredentials)
		}
		return err
	}
	fmt.Fprintf(c.out, "signed in as %s\n", user.Username)
	return nil
}

func (c *console) logout(ctx context.Context) error {
	c.dropListing()
	if err := c.app.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "signed out")
	return nil
}

func (c *console) whoami() {
	s := c.app.Session
	vs := view.Session{State: s.State().String(), User: s.User(), Persistent: s.Persistent()}
	if t := s.Tokens(); t != nil {
		if exp, err := service.AccessExpiry(t.AccessToken); err == nil {
			vs.Expires = exp
		}
	}
	view.Whoami(c.out, vs, time.Now())
}

// listFlags are the filters of the list command.
type listFlags struct {
	query string
	sort  string
	order string
	page  int
}

func (f *listFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.query, "q", "", "search text")
	fs.StringVar(&f.sort, "sort", string(model.SortByTitle), "title|price|rating")
	fs.StringVar(&f.order, "order", string(model.SortAsc), "asc|desc")
	fs.IntVar(&f.page, "page", 1, "page number")
}

func (f *listFlags) options() (service.ListOptions, error) {
	field, err := model.ParseSortField(f.sort)
	if err != nil {
		return service.ListOptions{}, err
	}
	dir, err := model.ParseSortDirection(f.order)
	if err != nil {
		return service.ListOptions{}, err
	}
	if f.page < 1 {
		return service.ListOptions{}, fmt.Errorf("page must be at least 1, got %d", f.page)
	}
	return service.ListOptions{Search: f.query, SortField: field, SortDir: dir, Page: f.page}, nil
}

func (c *console) list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var lf listFlags
	lf.bind(fs)
	guest := fs.Bool("guest", false, "list without signing in")
	if err := c.parseFlags(fs, args); err != nil {
		return err
	}
	opts, err := lf.options()
	if err != nil {
		fmt.Fprintf(c.errOut, "list: %v\n", err)
		return fmt.Errorf("list: %w", errUsage)
	}
	if *guest {
		c.app.Session.LoginAsGuest()
	}
	if err := c.app.Session.RequireAuth(); err != nil {
		return err
	}

	l := c.products()
	l.LoadWith(opts)
	l.Wait()
	s := l.Snapshot()
	if err := view.Listing(c.out, s); err != nil {
		return err
	}
	if s.LastError != "" {
		// already shown in the banner
		return fmt.Errorf("%w: %s", errShown, s.LastError)
	}
	return nil
}

// errShown wraps failures already printed to the user.
var errShown = errors.New("shown")
