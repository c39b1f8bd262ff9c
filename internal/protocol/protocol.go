package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/dd0wney/lsmtree/pkg/lsm"
)

// ScanFrames is a bufio.Scanner split function for the wire framing: each
// message (command or response) ends with a literal "\r\n", but may itself
// contain bare '\n' line breaks (the range and stats responses do). A plain
// line-oriented split would desync on those, so frames are delimited on the
// two-byte sequence instead.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, []byte("\r\n")); i >= 0 {
		return i + 2, data[0:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Dispatch parses one line of the collaborator CLI surface and executes
// it against engine, returning the single-line (or multi-line, for `r` and `s`)
// text response. Commands: `p k v`, `g k`, `r start end`, `d k`,
// `l "path"`, `s`, `h`, `q`.
func Dispatch(engine *lsm.Engine, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "Error: empty command", false
	}

	fields := tokenize(line)
	switch fields[0] {
	case "p":
		return dispatchPut(engine, fields)
	case "g":
		return dispatchGet(engine, fields)
	case "r":
		return dispatchRange(engine, fields)
	case "d":
		return dispatchDelete(engine, fields)
	case "l":
		return dispatchLoad(engine, fields)
	case "s":
		return dispatchStats(engine)
	case "h":
		return helpText(), false
	case "q":
		return "bye", true
	default:
		return fmt.Sprintf("Error: unknown command %q", fields[0]), false
	}
}

// tokenize splits on whitespace but keeps a double-quoted argument (the
// `l "path"` command) as one token.
func tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func dispatchPut(engine *lsm.Engine, fields []string) (string, bool) {
	if len(fields) != 3 {
		return "Error: put command requires exactly two arguments: p key value", false
	}
	key, err := parseInt64(fields[1])
	if err != nil {
		return "Error: invalid key", false
	}
	value, err := parseInt64(fields[2])
	if err != nil {
		return "Error: invalid value", false
	}
	if err := engine.Put(key, value); err != nil {
		return "Error: " + err.Error(), false
	}
	return "OK", false
}

func dispatchGet(engine *lsm.Engine, fields []string) (string, bool) {
	if len(fields) != 2 {
		return "Error: get command requires exactly one argument: g key", false
	}
	key, err := parseInt64(fields[1])
	if err != nil {
		return "Error: invalid key", false
	}
	v, ok, err := engine.Get(key)
	if err != nil {
		return "Error: " + err.Error(), false
	}
	if !ok {
		return "NOT_FOUND", false
	}
	return strconv.FormatInt(v, 10), false
}

func dispatchRange(engine *lsm.Engine, fields []string) (string, bool) {
	if len(fields) != 3 {
		return "Error: range command requires exactly two arguments: r start end", false
	}
	start, err := parseInt64(fields[1])
	if err != nil {
		return "Error: invalid start", false
	}
	end, err := parseInt64(fields[2])
	if err != nil {
		return "Error: invalid end", false
	}
	pairs, err := engine.Range(start, end)
	if err != nil {
		return "Error: " + err.Error(), false
	}

	var buf bytes.Buffer
	for _, p := range pairs {
		fmt.Fprintf(&buf, "%d %d\n", p.Key, p.Value)
	}
	fmt.Fprintf(&buf, "END (%d pairs)", len(pairs))
	return buf.String(), false
}

func dispatchDelete(engine *lsm.Engine, fields []string) (string, bool) {
	if len(fields) != 2 {
		return "Error: delete command requires exactly one argument: d key", false
	}
	key, err := parseInt64(fields[1])
	if err != nil {
		return "Error: invalid key", false
	}
	if _, err := engine.Remove(key); err != nil {
		return "Error: " + err.Error(), false
	}
	return "OK", false
}

func dispatchLoad(engine *lsm.Engine, fields []string) (string, bool) {
	if len(fields) != 2 {
		return `Error: load command requires exactly one argument: l "path"`, false
	}
	if err := engine.LoadFile(fields[1]); err != nil {
		return "Error: " + err.Error(), false
	}
	return "OK", false
}

func dispatchStats(engine *lsm.Engine) (string, bool) {
	var buf bytes.Buffer
	if err := engine.WriteReport(&buf); err != nil {
		return "Error: " + err.Error(), false
	}
	return buf.String(), false
}

func helpText() string {
	return strings.Join([]string{
		"p k v       put key v",
		"g k         get key",
		"r start end range [start, end)",
		`d k         delete key`,
		`l "path"    load a pair file`,
		"s           stats report",
		"h           this help text",
		"q           disconnect",
	}, "\n")
}
