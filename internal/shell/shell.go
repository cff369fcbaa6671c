// Package shell is the interactive front-end: it reads queries line by
// line and prints each result as a table.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"

	"github.com/inelson/kubesql/pkg/api"
)

const prompt = "> "

// LineReader yields one input line per call and io.EOF at end of input.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

type Executor interface {
	Execute(ctx context.Context, q string) (*api.QueryResult, error)
}

type Options struct {
	HistoryFile string
	HistorySize int
}

// Open starts a readline session on the terminal with persisted history.
func Open(opts Options) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     opts.HistoryFile,
		HistoryLimit:    opts.HistorySize,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("open readline: %w", err)
	}
	return rl, nil
}

type Shell struct {
	exec   Executor
	out    io.Writer
	logger *slog.Logger
}

func New(exec Executor, out io.Writer, logger *slog.Logger) *Shell {
	return &Shell{exec: exec, out: out, logger: logger}
}

// Run reads until end of input or an interrupt and returns nil in both
// cases. Query errors are printed and the loop continues.
func (s *Shell) Run(ctx context.Context, lr LineReader) error {
	defer lr.Close()

	for {
		line, err := lr.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				fmt.Fprintln(s.out, "shutting down.")
				return nil
			}
			return fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.handle(ctx, line)
	}
}

func (s *Shell) handle(ctx context.Context, line string) {
	res, err := s.exec.Execute(ctx, line)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if err := RenderTable(s.out, res); err != nil {
		s.logger.Error("failed to render result", "error", err)
	}
}
