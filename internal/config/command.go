package config

import (
	"errors"
	"strings"
	"unicode"
)

// SplitCommand tokenizes a command line the way a POSIX shell would split
// words, without performing any expansion. Single quotes preserve their
// content literally, double quotes honour backslash escapes of `"` and `\`,
// and a backslash outside quotes escapes the next character.
func SplitCommand(command string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
	)

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case quote == '"':
			switch {
			case r == '"':
				quote = 0
			case r == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\'):
				i++
				current.WriteRune(runes[i])
			default:
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == '\\':
			if i+1 >= len(runes) {
				return nil, errors.New("trailing backslash in command")
			}
			i++
			current.WriteRune(runes[i])
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
