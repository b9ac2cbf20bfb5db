package repl

import (
	"sort"
	"strings"
)

// Completer matches command names against partial input.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer for the given command names. The
// built-in exit, quit and history commands are always included.
func NewCompleter(names ...string) *Completer {
	seen := map[string]bool{}
	var cmds []string
	for _, n := range append(names, "exit", "quit", "history") {
		if n != "" && !seen[n] {
			seen[n] = true
			cmds = append(cmds, n)
		}
	}
	sort.Strings(cmds)
	return &Completer{commands: cmds}
}

// Complete returns the commands starting with prefix, in sorted order.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}

// Known reports whether name is a command.
func (c *Completer) Known(name string) bool {
	i := sort.SearchStrings(c.commands, name)
	return i < len(c.commands) && c.commands[i] == name
}

// Suggest returns candidates for a mistyped command: the completions of
// its longest prefix that matches anything.
func (c *Completer) Suggest(word string) []string {
	for n := len(word); n > 0; n-- {
		if s := c.Complete(word[:n]); len(s) > 0 {
			return s
		}
	}
	return nil
}
