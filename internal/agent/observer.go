package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Observer receives progress events from the tool loop.
type Observer interface {
	ModelStart(ctx context.Context)
	ModelEnd(ctx context.Context)
	ToolStart(ctx context.Context, name string)
	ToolEnd(ctx context.Context, name string, err error)
}

type nopObserver struct{}

func (nopObserver) ModelStart(context.Context)             {}
func (nopObserver) ModelEnd(context.Context)               {}
func (nopObserver) ToolStart(context.Context, string)      {}
func (nopObserver) ToolEnd(context.Context, string, error) {}

// Printer writes one progress line per event.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns an Observer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) ModelStart(context.Context) { p.line("[agent] querying LLM...") }
func (p *Printer) ModelEnd(context.Context)   { p.line("[agent] LLM responded.") }

func (p *Printer) ToolStart(_ context.Context, name string) {
	p.line(fmt.Sprintf("[agent] running tool '%s'...", name))
}

func (p *Printer) ToolEnd(_ context.Context, _ string, err error) {
	if err != nil {
		p.line(fmt.Sprintf("[agent] tool failed: %v", err))
		return
	}
	p.line("[agent] tool finished.")
}

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
