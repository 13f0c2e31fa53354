package headless

import (
	"strconv"
	"strings"
)

// WorldSummary is one entry of the "worlds" listing.
type WorldSummary struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Users       int    `json:"users"`
	Present     int    `json:"present"`
	AccessLevel string `json:"accessLevel"`
	MaxUsers    int    `json:"maxUsers"`
}

const usersMarker = "Users:"

// ParseWorlds parses the reply to "worlds". Each entry is tab separated:
//
//	[0] My World Users: 3	Present: 2	Access Level: Anyone	Max Users: 16
func ParseWorlds(lines []string) []WorldSummary {
	var worlds []WorldSummary
	for _, line := range body(lines, CmdWorlds) {
		if w, ok := parseWorld(line); ok {
			worlds = append(worlds, w)
		}
	}
	return worlds
}

func parseWorld(line string) (WorldSummary, bool) {
	parts := strings.Split(line, "\t")
	head := parts[0]

	at := strings.LastIndex(head, usersMarker)
	if at < 0 {
		return WorldSummary{}, false
	}

	w := WorldSummary{Index: -1}
	nameStart := 0
	if open := strings.Index(head, "["); open >= 0 {
		if end := strings.Index(head[open:], "]"); end > 0 && open+end < at {
			if idx, err := strconv.Atoi(strings.TrimSpace(head[open+1 : open+end])); err == nil {
				w.Index = idx
			}
			nameStart = open + end + 1
		}
	}
	w.Name = strings.TrimSpace(head[nameStart:at])
	w.Users = atoi(head[at+len(usersMarker):])

	if len(parts) > 1 {
		w.Present = atoi(field(parts[1]))
	}
	if len(parts) > 2 {
		w.AccessLevel = field(parts[2])
	}
	if len(parts) > 3 {
		w.MaxUsers = atoi(field(parts[3]))
	}
	return w, true
}

// atoi parses a trimmed integer and returns 0 when it is not one.
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
