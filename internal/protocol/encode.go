package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Encode renders cmd and args as a single newline-terminated command line.
// Arguments are checked against the catalogue before anything is produced.
func Encode(cmd Command, args ...any) ([]byte, error) {
	spec, ok := Lookup(cmd)
	if !ok {
		return nil, &InvalidArgumentError{Command: cmd, Reason: "unknown command"}
	}
	if len(args) != len(spec.Args) {
		return nil, &InvalidArgumentError{
			Command: cmd,
			Reason:  fmt.Sprintf("expected %d argument(s), got %d", len(spec.Args), len(args)),
		}
	}

	var b strings.Builder
	b.WriteString(string(cmd))
	for i, arg := range spec.Args {
		token, err := formatArg(arg, args[i])
		if err != nil {
			return nil, &InvalidArgumentError{Command: cmd, Arg: arg.Name, Reason: err.Error()}
		}
		b.WriteByte(' ')
		b.WriteString(token)
	}
	b.WriteByte('\n')

	return []byte(b.String()), nil
}

// ParseLine splits an operator line into a command and its raw tokens.
func ParseLine(line string) (Command, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, &InvalidArgumentError{Reason: "empty command line"}
	}

	return Command(fields[0]), fields[1:], nil
}

// EncodeLine validates a free-form operator line against the catalogue and
// encodes it.
func EncodeLine(line string) (Command, []byte, error) {
	cmd, tokens, err := ParseLine(line)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, len(tokens))
	for i, tok := range tokens {
		args[i] = tok
	}
	payload, err := Encode(cmd, args...)
	if err != nil {
		return cmd, nil, err
	}

	return cmd, payload, nil
}

func formatArg(spec ArgSpec, v any) (string, error) {
	switch spec.Type {
	case ArgInt:
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case ArgString:
		s, err := toToken(v)
		if err != nil {
			return "", err
		}
		return s, nil
	default:
		return "", fmt.Errorf("unsupported declared type %s", spec.Type)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt64(n)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a base-10 integer", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot use %T as int", v)
	}
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", n)
	}

	return int64(n), nil
}

func toToken(v any) (string, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		return "", fmt.Errorf("cannot use %T as string", v)
	}
	if s == "" {
		return "", fmt.Errorf("empty string")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%q contains whitespace", s)
	}

	return s, nil
}
