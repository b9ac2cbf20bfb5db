package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Executor runs one parsed command line.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	in        *bufio.Reader
	out       io.Writer
	exec      Executor
	prompt    func() string
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets the prompt function, called before every line.
func WithPrompt(fn func() string) Option {
	return func(r *REPL) { r.prompt = fn }
}

// WithCommands sets the command names used for suggestions.
func WithCommands(names ...string) Option {
	return func(r *REPL) { r.completer = NewCompleter(names...) }
}

// WithHistorySize bounds the in-memory history.
func WithHistorySize(n int) Option {
	return func(r *REPL) { r.history = NewHistory(n) }
}

// New creates a REPL reading lines from in.
func New(in io.Reader, out io.Writer, exec Executor, opts ...Option) *REPL {
	r := &REPL{
		in:        bufio.NewReader(in),
		out:       out,
		exec:      exec,
		prompt:    func() string { return "> " },
		completer: NewCompleter(),
		history:   NewHistory(DefaultHistorySize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reader returns the buffered input, for commands that read further
// lines such as a password given on stdin.
func (r *REPL) Reader() *bufio.Reader {
	return r.in
}

// History returns the session history.
func (r *REPL) History() *History {
	return r.history
}

// Run reads and executes lines until exit, end of input or ctx is done.
// Command errors are printed and do not stop the loop.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, r.prompt())

		line, err := r.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil

		if line = strings.TrimSpace(line); line != "" {
			if r.handle(ctx, line) {
				return nil
			}
		}
		if eof {
			fmt.Fprintln(r.out)
			return nil
		}
	}
}

// handle runs one non-empty line and reports whether the loop should stop.
func (r *REPL) handle(ctx context.Context, line string) bool {
	args, err := Split(line)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	r.history.Add(line)

	switch args[0] {
	case "exit", "quit":
		return true
	case "history":
		for i, e := range r.history.Entries() {
			fmt.Fprintf(r.out, "%4d  %s\n", i+1, e)
		}
		return false
	}

	if !r.completer.Known(args[0]) {
		fmt.Fprintf(r.out, "unknown command %q", args[0])
		if s := r.completer.Suggest(args[0]); len(s) > 0 {
			fmt.Fprintf(r.out, ", did you mean: %s", strings.Join(s, ", "))
		}
		fmt.Fprintln(r.out)
		return false
	}
	if err := r.exec(ctx, args); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return false
}

// Split breaks a line into words. Single quotes keep their content
// verbatim, double quotes allow backslash escapes, and a backslash outside
// quotes escapes the next character.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case quote == '"':
			switch c {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(c)
			}
		case c == '\\':
			escaped, inWord = true, true
		case c == '\'' || c == '"':
			quote, inWord = c, true
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
