package highlight

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<h1 class="element-ref-0">Title</h1>
<p class="element-ref-1" style="color: red; background-color: blue;">Styled paragraph</p>
<p class="element-ref-2">Plain paragraph</p>
<p id="intro">Found by selector</p>
<p data-ai-ref="custom ref">Found by attribute</p>
<p class="a.b">Dotted class</p>
</body></html>`

func newDoc(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func attr(doc *goquery.Document, selector, name string) (string, bool) {
	return doc.Find(selector).First().Attr(name)
}

func TestHighlight_MarksAndExpires(t *testing.T) {
	doc := newDoc(t)
	h := New(doc, WithDuration(30*time.Millisecond), WithLogger(log.New(&bytes.Buffer{}, "", 0)))

	require.True(t, h.Highlight("element-ref-2"))
	assert.Equal(t, "element-ref-2", h.Active())

	v, ok := attr(doc, ".element-ref-2", Attr)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
	style, _ := attr(doc, ".element-ref-2", "style")
	assert.Equal(t, "transition: background-color 0.45s ease; background-color: rgba(255, 246, 140, 0.85);", style)

	assert.Eventually(t, func() bool { return h.Active() == "" }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok = attr(doc, ".element-ref-2", Attr)
	assert.False(t, ok)
	_, ok = attr(doc, ".element-ref-2", "style")
	assert.False(t, ok, "style attribute added by the mark is removed again")
}

func TestHighlight_RestoresPriorStyle(t *testing.T) {
	doc := newDoc(t)
	h := New(doc, WithDuration(time.Hour))

	require.True(t, h.Highlight("element-ref-1"))
	style, _ := attr(doc, ".element-ref-1", "style")
	assert.Equal(t, "color: red; background-color: rgba(255, 246, 140, 0.85); transition: background-color 0.45s ease;", style)

	h.Clear()
	style, _ = attr(doc, ".element-ref-1", "style")
	assert.Equal(t, "color: red; background-color: blue;", style)
	assert.Empty(t, h.Active())
}

func TestHighlight_OneMarkAtATime(t *testing.T) {
	doc := newDoc(t)
	var mu sync.Mutex
	var events []string
	h := New(doc, WithDuration(time.Hour), WithMarkListener(func(handle string, marked bool) {
		mu.Lock()
		defer mu.Unlock()
		if marked {
			events = append(events, "+"+handle)
		} else {
			events = append(events, "-"+handle)
		}
	}))

	require.True(t, h.Highlight("element-ref-0"))
	require.True(t, h.Highlight("element-ref-2"))

	assert.Equal(t, 1, doc.Find(`[data-ai-context-highlight="true"]`).Length())
	_, ok := attr(doc, ".element-ref-0", "style")
	assert.False(t, ok)

	h.Clear()
	h.Clear()
	assert.Equal(t, 0, doc.Find(`[data-ai-context-highlight="true"]`).Length())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"+element-ref-0", "-element-ref-0", "+element-ref-2", "-element-ref-2"}, events)
}

func TestHighlight_LookupFallbacks(t *testing.T) {
	doc := newDoc(t)
	h := New(doc, WithDuration(time.Hour))

	tests := []struct {
		handle string
		text   string
	}{
		{"element-ref-0", "Title"},
		{"  element-ref-2 ", "Plain paragraph"},
		{"#intro", "Found by selector"},
		{"custom ref", "Found by attribute"},
		{"a.b", "Dotted class"},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			require.True(t, h.Highlight(tt.handle))
			marked := doc.Find(`[data-ai-context-highlight="true"]`)
			require.Equal(t, 1, marked.Length())
			assert.Equal(t, tt.text, marked.Text())
		})
	}
}

func TestHighlight_MissingHandle(t *testing.T) {
	doc := newDoc(t)
	var buf bytes.Buffer
	h := New(doc, WithLogger(log.New(&buf, "", 0)))

	require.True(t, h.Highlight("element-ref-0"))
	assert.False(t, h.Highlight("element-ref-99"))
	assert.False(t, h.Highlight(""))
	assert.False(t, h.Highlight("[[invalid"))

	assert.Contains(t, buf.String(), `element not found for handle "element-ref-99"`)
	assert.Empty(t, h.Active(), "a failed highlight still clears the previous mark")
}

func TestHighlight_Text(t *testing.T) {
	h := New(newDoc(t))

	text, ok := h.Text("element-ref-1")
	require.True(t, ok)
	assert.Equal(t, "Styled paragraph", text)

	_, ok = h.Text("missing")
	assert.False(t, ok)
}

func TestCSSEscape(t *testing.T) {
	assert.Equal(t, "element-ref-3", cssEscape("element-ref-3"))
	assert.Equal(t, `a\.b`, cssEscape("a.b"))
	assert.Equal(t, `x\ y\#z`, cssEscape("x y#z"))
}

func TestSetStyleProperty(t *testing.T) {
	assert.Equal(t, "color: red;", setStyleProperty("", "color", "red"))
	assert.Equal(t, "color: blue; margin: 0;", setStyleProperty("color:red;margin:0", "color", "blue"))
	assert.Equal(t, "margin: 0;", setStyleProperty("color: red; margin: 0;", "color", ""))
	assert.Equal(t, "", setStyleProperty("color: red", "color", ""))

	v, ok := styleProperty("Background-Color: blue", "background-color")
	assert.True(t, ok)
	assert.Equal(t, "blue", v)
}
