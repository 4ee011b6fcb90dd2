// Package highlight marks page elements found by reference handle.
package highlight

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/pagesearch/internal/types"
	"github.com/xhad/pagesearch/pkg/config"
)

const (
	Attr       = "data-ai-context-highlight"
	RefAttr    = "data-ai-ref"
	Background = "rgba(255, 246, 140, 0.85)"
	Transition = "background-color 0.45s ease"

	DefaultDuration = 3800 * time.Millisecond
)

var _ types.Highlighter = (*Highlighter)(nil)

type mark struct {
	handle string
	sel    *goquery.Selection
	prev   map[string]*string // prior inline value per property, nil if unset
	timer  *time.Timer
}

// Highlighter marks at most one element of a document at a time and clears
// the mark after a fixed duration. It implements types.Highlighter.
type Highlighter struct {
	doc      *goquery.Document
	duration time.Duration
	logger   *log.Logger
	onMark   func(handle string, marked bool)

	mu     sync.Mutex
	active *mark
}

type Option func(*Highlighter)

func WithDuration(d time.Duration) Option {
	return func(h *Highlighter) {
		if d > 0 {
			h.duration = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(h *Highlighter) { h.logger = logger }
}

// WithMarkListener registers fn to be told when a mark is set or removed.
func WithMarkListener(fn func(handle string, marked bool)) Option {
	return func(h *Highlighter) { h.onMark = fn }
}

func OptionsFromApp(cfg *config.Config) []Option {
	return []Option{WithDuration(cfg.Highlight.Duration)}
}

func New(doc *goquery.Document, opts ...Option) *Highlighter {
	h := &Highlighter{
		doc:      doc,
		duration: DefaultDuration,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Highlight clears any previous mark and marks the element for handle. A
// handle that matches nothing is logged and reported as false.
func (h *Highlighter) Highlight(handle string) bool {
	h.mu.Lock()
	cleared := h.clearLocked()

	handle = strings.TrimSpace(handle)
	sel := h.lookup(handle)
	if sel == nil {
		h.mu.Unlock()
		h.notify(cleared, false)
		h.logger.Printf("highlight: element not found for handle %q", handle)
		return false
	}

	m := &mark{handle: handle, sel: sel, prev: map[string]*string{}}
	style, _ := sel.Attr("style")
	for _, prop := range []string{"transition", "background-color"} {
		if v, ok := styleProperty(style, prop); ok {
			m.prev[prop] = &v
		} else {
			m.prev[prop] = nil
		}
	}

	style = setStyleProperty(style, "transition", Transition)
	style = setStyleProperty(style, "background-color", Background)
	sel.SetAttr("style", style)
	sel.SetAttr(Attr, "true")

	m.timer = time.AfterFunc(h.duration, func() { h.expire(m) })
	h.active = m
	h.mu.Unlock()

	h.notify(cleared, false)
	h.notify(handle, true)
	return true
}

// Clear removes the current mark, if any.
func (h *Highlighter) Clear() {
	h.mu.Lock()
	cleared := h.clearLocked()
	h.mu.Unlock()
	h.notify(cleared, false)
}

// Active returns the handle currently marked, or "".
func (h *Highlighter) Active() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return ""
	}
	return h.active.handle
}

// Text returns the collapsed text of the element for handle.
func (h *Highlighter) Text(handle string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sel := h.lookup(handle)
	if sel == nil {
		return "", false
	}
	return strings.Join(strings.Fields(sel.Text()), " "), true
}

func (h *Highlighter) expire(m *mark) {
	h.mu.Lock()
	if h.active != m {
		h.mu.Unlock()
		return
	}
	h.restore(m)
	h.active = nil
	h.mu.Unlock()

	h.notify(m.handle, false)
}

// clearLocked removes the active mark and any stray marked elements. It
// returns the handle that was active.
func (h *Highlighter) clearLocked() string {
	var handle string
	if m := h.active; m != nil {
		m.timer.Stop()
		h.restore(m)
		h.active = nil
		handle = m.handle
	}

	h.doc.Find(fmt.Sprintf(`[%s="true"]`, Attr)).Each(func(_ int, sel *goquery.Selection) {
		sel.RemoveAttr(Attr)
		style, _ := sel.Attr("style")
		style = setStyleProperty(style, "transition", "")
		style = setStyleProperty(style, "background-color", "")
		setOrRemoveStyle(sel, style)
	})
	return handle
}

func (h *Highlighter) restore(m *mark) {
	style, _ := m.sel.Attr("style")
	for prop, prev := range m.prev {
		value := ""
		if prev != nil {
			value = *prev
		}
		style = setStyleProperty(style, prop, value)
	}
	setOrRemoveStyle(m.sel, style)
	m.sel.RemoveAttr(Attr)
}

// lookup resolves a handle as a class, then as a selector, then by the
// data-ai-ref attribute.
func (h *Highlighter) lookup(handle string) *goquery.Selection {
	if handle == "" {
		return nil
	}

	candidates := []string{
		"." + cssEscape(handle),
		handle,
		fmt.Sprintf(`[%s="%s"]`, RefAttr, strings.ReplaceAll(handle, `"`, `\"`)),
	}
	for _, selector := range candidates {
		// goquery matches nothing for a selector it cannot compile
		if sel := h.doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

func (h *Highlighter) notify(handle string, marked bool) {
	if handle == "" || h.onMark == nil {
		return
	}
	h.onMark(handle, marked)
}

var cssSpecial = regexp.MustCompile("([ !\"#$%&'()*+,./:;<=>?@\\[\\\\\\]^`{|}~])")

// cssEscape backslash-escapes characters with meaning in a CSS selector.
func cssEscape(s string) string {
	return cssSpecial.ReplaceAllString(s, `\${1}`)
}

func setOrRemoveStyle(sel *goquery.Selection, style string) {
	if style == "" {
		sel.RemoveAttr("style")
		return
	}
	sel.SetAttr("style", style)
}
