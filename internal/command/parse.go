package command

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// Parse reads one console line such as "/settings mc.example.com 19132 Bot1 2"
// or "/chat @2 hello there". The operator is left empty.
//
// Commands with fixed arguments take an optional trailing slot; text commands
// take the slot as a leading "@N" token and keep the rest of the line as typed.
func Parse(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, ErrEmpty
	}
	head, rest := cutField(line)
	name := strings.ToLower(strings.TrimPrefix(head, "/"))
	req := Request{Name: name}

	if tok, after := cutField(rest); isSlotToken(tok) {
		slot, err := parseSlot(tok[1:])
		if err != nil {
			return Request{}, err
		}
		req.Slot = slot
		rest = after
	}

	cmd, known := lookup(name)
	if known && cmd.text {
		if rest != "" {
			req.Args = []string{rest}
		}
		return req, nil
	}

	args := strings.Fields(rest)
	if known && req.Slot == 0 && len(args) == cmd.args+1 {
		// a non-numeric extra argument is left for the arity check
		if slot, err := parseSlot(args[len(args)-1]); err == nil {
			req.Slot = slot
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		req.Args = args
	}
	return req, nil
}

// cutField splits off the first whitespace-separated field. rest starts at
// the next non-space rune and keeps inner spacing.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// isSlotToken matches "@" followed by one or more ASCII digits.
func isSlotToken(tok string) bool {
	if len(tok) < 2 || tok[0] != '@' {
		return false
	}
	for _, r := range tok[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseSlot(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, session.InvalidArgument("slot %q is not a number", s)
	}
	return session.ClampSlot(n), nil
}
