package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/retrieval"
	"github.com/xhad/pagesearch/pkg/scraper"
)

const disconnectNotice = "Connection lost. Please restart the session."

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// spin shows a spinner until the returned func is called.
func spin(description string) func() {
	bar := getSpinner(description)
	return func() {
		_ = bar.Finish()
		fmt.Print("\r")
	}
}

// statusLine shows a spinner for as long as the session is in a state with
// status text. It is meant to be a session state listener.
type statusLine struct {
	spinner func(description string) func()

	mu   sync.Mutex
	stop func()
}

func newStatusLine(spinner func(description string) func()) *statusLine {
	return &statusLine{spinner: spinner}
}

func (s *statusLine) update(_, to retrieval.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if text := statusText(to); text != "" {
		s.stop = s.spinner(text)
	}
}

// statusText is the line shown while a session is in state s.
func statusText(s retrieval.State) string {
	switch s {
	case retrieval.Indexing:
		return "Creating Page Embedding"
	case retrieval.Searching:
		return "Searching Page Embedding"
	}
	return ""
}

// describePage is the summary printed once a page is loaded.
func describePage(page *scraper.Page, elements int) string {
	desc := fmt.Sprintf("%q (%d elements)", page.Title, elements)
	if page.RobotsMeta != "" {
		desc += fmt.Sprintf(" [robots: %s]", page.RobotsMeta)
	}
	return desc
}

// markLogger reports highlight marks and their expiry.
func markLogger(logger *log.Logger) func(handle string, marked bool) {
	return func(handle string, marked bool) {
		if marked {
			logger.Printf("highlighted %s", handle)
			return
		}
		logger.Printf("cleared highlight on %s", handle)
	}
}

func truncateText(text string, wordLimit int) string {
	words := strings.Fields(text)
	if len(words) > wordLimit {
		return strings.Join(words[:wordLimit], " ") + "..."
	}
	return text
}

func formatScore(score float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(score*100)))
}

func printResults(w io.Writer, results []models.ScoredChunk, previewWords int) {
	if len(results) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No matches on this page.")
		return
	}

	index := color.New(color.FgHiBlack).FprintfFunc()
	badge := color.New(color.FgHiBlue, color.Bold).FprintfFunc()
	for i, r := range results {
		index(w, "%3d. ", i+1)
		fmt.Fprintf(w, "%-48s ", truncateText(r.Text, previewWords))
		badge(w, "%5s", formatScore(r.Score))
		fmt.Fprintf(w, "  (%s)\n", r.ID)
	}
}
