package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Ning0612/foldersync/internal/domain"
)

// prompter asks yes/no questions on a terminal
type prompter struct {
	in       *bufio.Reader
	out      io.Writer
	maxPaths int
}

func newPrompter(in io.Reader, out io.Writer, maxPaths int) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, maxPaths: maxPaths}
}

func (p *prompter) ConfirmInvalidRemoval(ctx context.Context, target string, paths []string) (bool, error) {
	fmt.Fprintf(p.out, "Found %d entries in %s that are neither files nor folders:\n%s\n",
		len(paths), target, listPaths(paths, p.maxPaths))
	return p.ask(ctx, "Remove them?")
}

func (p *prompter) ConfirmPlan(ctx context.Context, plan *domain.Plan) (bool, error) {
	writePreview(p.out, plan, p.maxPaths)
	return p.ask(ctx, "Apply these changes?")
}

// ask reads one answer; anything but y or yes declines
func (p *prompter) ask(ctx context.Context, question string) (bool, error) {
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)

	fmt.Fprintf(p.out, "%s [y/N] ", question)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
