package headless

import (
	"regexp"
	"strings"
)

// BanRecord is one entry of the ban list.
type BanRecord struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

var banPattern = regexp.MustCompile(`\[\d+\]Username:(.+?)UserID:(.+?)MachineIds:`)

// ParseBans parses the reply to "listbans". The first line is the command
// echo and is always dropped. Tabs are removed before matching so
// "[0]\tUsername:\tBob" and "[0]Username:Bob" are equivalent.
func ParseBans(lines []string) []BanRecord {
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var bans []BanRecord
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "")
		if line == "" || isPrompt(line) {
			continue
		}
		m := banPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		bans = append(bans, BanRecord{
			Username: strings.TrimSpace(m[1]),
			UserID:   strings.TrimSpace(m[2]),
		})
	}
	return bans
}
