package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/highlight"
	"github.com/xhad/pagesearch/pkg/retrieval"
)

// repl reads queries and commands until EOF or "exit".
type repl struct {
	session      *retrieval.Session
	highlighter  *highlight.Highlighter
	previewWords int

	in  io.Reader
	out io.Writer

	results []models.ScoredChunk
}

func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	prompt := color.New(color.FgGreen).FprintfFunc()

	color.New(color.FgCyan).Fprintln(r.out, "\nSearch this page (type 'open N' to highlight a result, 'exit' to quit)")

	for {
		if r.session.State() == retrieval.Closed {
			color.New(color.FgRed, color.Bold).Fprintln(r.out, disconnectNotice)
			return nil
		}

		prompt(r.out, "\nSearch: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, "open "):
			r.open(strings.TrimSpace(strings.TrimPrefix(line, "open ")))
		default:
			if err := r.search(ctx, line); err != nil {
				return err
			}
		}
	}
}

// search runs one query. Only context errors are returned; the rest are
// reported inline.
func (r *repl) search(ctx context.Context, query string) error {
	results, err := r.session.Search(ctx, query)

	switch {
	case err == nil:
		r.results = results
		printResults(r.out, results, r.previewWords)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	case r.session.State() == retrieval.Closed:
		// the notice is printed by run
	default:
		color.New(color.FgRed).Fprintf(r.out, "Search failed: %v\n", err)
	}
	return nil
}

func (r *repl) open(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.results) {
		color.New(color.FgRed).Fprintf(r.out, "No result %q\n", arg)
		return
	}

	handle := r.results[n-1].ID
	if !r.highlighter.Highlight(handle) {
		color.New(color.FgRed).Fprintf(r.out, "Element %s is no longer on the page\n", handle)
		return
	}

	text, _ := r.highlighter.Text(handle)
	color.New(color.BgYellow, color.FgBlack).Fprintf(r.out, "%s", text)
	fmt.Fprintln(r.out)
}
