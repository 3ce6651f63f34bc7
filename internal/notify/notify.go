// Package notify delivers short, transient user notifications.
package notify

import (
	"fmt"
	"io"
	"sync"
)

// Level classifies a notification.
type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notification is a single toast.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier accepts notifications. Implementations must be safe for
// concurrent use; Notify must not block for long.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Nop discards everything.
var Nop Notifier = Func(func(Notification) {})

// Printer writes one line per notification.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer { return &Printer{w: w} }

func (p *Printer) Notify(n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	marker := map[Level]string{Info: "*", Success: "+", Error: "!"}[n.Level]
	if n.Message == "" {
		fmt.Fprintf(p.w, "[%s] %s\n", marker, n.Title)
		return
	}
	fmt.Fprintf(p.w, "[%s] %s: %s\n", marker, n.Title, n.Message)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}
