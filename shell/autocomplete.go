package shell

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// ShellCompleter provides context-aware autocomplete for shell commands
type ShellCompleter struct{}

func NewShellCompleter() *ShellCompleter {
	return &ShellCompleter{}
}

// CommandMetadata holds autocomplete information for a command
type CommandMetadata struct {
	Options []string
	Args    []string
}

var commandMetadata = map[string]CommandMetadata{
	"run":   {Options: []string{"-deadline"}},
	"cell":  {},
	"hold":  {Args: []string{"none", "I", "O", "T", "S", "Z", "J", "L"}},
	"piece": {Args: []string{"I", "O", "T", "S", "Z", "J", "L"}},
	"help":  {Args: []string{"run", "script"}},
}

var commandNames = []string{
	"help", "show", "clear", "board", "cell", "piece", "queue", "hold",
	"random", "load", "snapshot", "run", "keys", "start", "stop", "script",
	"exit",
}

var deadlineValues = []string{"100ms", "250ms", "500ms", "1s", "2s"}

// Do implements the readline.AutoComplete interface
func (c *ShellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	fields, err := shellquote.Split(text)
	if err != nil {
		// If we can't parse, fall back to simple space splitting
		fields = strings.Fields(text)
	}
	endsWithSpace := len(text) > 0 && text[len(text)-1] == ' '

	var prefix string
	var completions []string

	if len(fields) == 0 || (len(fields) == 1 && !endsWithSpace) {
		if len(fields) == 1 {
			prefix = fields[0]
		}
		completions = commandNames
	} else {
		cmdName := fields[0]
		if !endsWithSpace {
			prefix = fields[len(fields)-1]
		}

		var lastCompleteField string
		if endsWithSpace {
			lastCompleteField = fields[len(fields)-1]
		} else if len(fields) > 1 {
			lastCompleteField = fields[len(fields)-2]
		}

		if lastCompleteField == "-deadline" {
			completions = deadlineValues
		} else if metadata, exists := commandMetadata[cmdName]; exists {
			if strings.HasPrefix(prefix, "-") || len(metadata.Args) == 0 {
				completions = metadata.Options
			} else {
				completions = metadata.Args
			}
		}
	}

	var matches [][]rune
	for _, completion := range completions {
		if strings.HasPrefix(completion, prefix) {
			// Return only the part that needs to be added
			matches = append(matches, []rune(completion[len(prefix):]))
		}
	}
	return matches, len(prefix)
}
