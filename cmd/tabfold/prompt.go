package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"tabfold-mcp-server/internal/reconcile"
)

// lineReader is the part of *readline.Instance the prompts use.
type lineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
}

// promptApprover asks on the terminal before anything changes.
type promptApprover struct {
	rl  lineReader
	out io.Writer
}

func newReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		InterruptPrompt:   "^C",
		EOFPrompt:         "no",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Approve shows preview and reads a yes/no answer. Ctrl+C and Ctrl+D decline.
func (p promptApprover) Approve(_ context.Context, preview string) (bool, error) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	fmt.Fprintf(p.out, "\n%s\n", yellow(preview))

	p.rl.SetPrompt("Proceed? [y/N] ")
	line, err := p.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// chooseFolders lists candidates and reads a selection of numbers or ids.
func chooseFolders(rl lineReader, out io.Writer, candidates []reconcile.TargetSet) ([]string, error) {
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(out, "\n%s\n", cyan("Several bookmark folders have links:"))
	for i, set := range candidates {
		fmt.Fprintf(out, "  %2d. %s (%d links)\n", i+1, set.Label(), len(set.Links))
	}

	rl.SetPrompt("Folders to group (numbers or ids, comma separated): ")
	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return parseSelection(line, candidates), nil
}

// parseSelection maps 1-based positions to folder ids. Anything else is
// passed through as an id.
func parseSelection(line string, candidates []reconcile.TargetSet) []string {
	var ids []string
	for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		if n, err := strconv.Atoi(field); err == nil && n >= 1 && n <= len(candidates) {
			ids = append(ids, candidates[n-1].ID)
			continue
		}
		ids = append(ids, field)
	}
	return ids
}
