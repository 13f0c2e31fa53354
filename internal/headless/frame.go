// Package headless interprets the output of the headless world server's
// console commands. Parsers are total: lines that do not match are skipped
// and missing fields keep their zero value.
package headless

import "strings"

// Console commands understood by the parsers.
const (
	CmdWorlds = "worlds"
	CmdStatus = "status"
	CmdUsers  = "users"
	CmdBans   = "listbans"
	CmdFocus  = "focus"
)

// body strips the command echo and the trailing prompt from a reply. The echo
// is a first line ending with the command (e.g. "My World>worlds"); the prompt
// is a last line ending with ">". Either may be missing.
func body(lines []string, command string) []string {
	if len(lines) > 0 && command != "" && strings.HasSuffix(strings.TrimSpace(lines[0]), command) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && isPrompt(lines[n-1]) {
		lines = lines[:n-1]
	}
	return lines
}

func isPrompt(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), ">")
}

// field returns the value of a "Key: value" fragment, or the trimmed fragment
// itself when it has no colon.
func field(fragment string) string {
	if _, v, ok := strings.Cut(fragment, ":"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(fragment)
}
