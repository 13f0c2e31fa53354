package headless

import (
	"strconv"
	"strings"
)

// UserSession is one user connected to the focused world.
type UserSession struct {
	Username string            `json:"username"`
	UserID   string            `json:"userId"`
	Role     string            `json:"role"`
	Present  bool              `json:"present"`
	Ping     int               `json:"ping"`
	FPS      float64           `json:"fps"`
	Silenced bool              `json:"silenced"`
	Extra    map[string]string `json:"extra,omitempty"`
}

const idToken = "ID:"

// ParseUsers parses the reply to "users":
//
//	Alice ID: U-123 Role: Admin Present: true Ping: 42ms FPS: 59.9 Silenced: false
//
// The username is every token before "ID:". After it, a token ending in a
// colon is a key and the next token its value. Keys are case-insensitive.
func ParseUsers(lines []string) []UserSession {
	var users []UserSession
	for _, line := range body(lines, CmdUsers) {
		if u, ok := parseUser(line); ok {
			users = append(users, u)
		}
	}
	return users
}

func parseUser(line string) (UserSession, bool) {
	tokens := strings.Fields(line)

	at := -1
	for i, tok := range tokens {
		if tok == idToken {
			at = i
			break
		}
	}
	if at < 0 {
		return UserSession{}, false
	}

	u := UserSession{Username: strings.Join(tokens[:at], " ")}
	for i := at; i < len(tokens)-1; i++ {
		tok := tokens[i]
		if !strings.HasSuffix(tok, ":") || len(tok) == 1 {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(tok, ":"))
		value := tokens[i+1]
		i++

		switch key {
		case "id":
			u.UserID = value
		case "role":
			u.Role = value
		case "present":
			u.Present = strings.EqualFold(value, "true")
		case "silenced":
			u.Silenced = strings.EqualFold(value, "true")
		case "ping":
			u.Ping = atoi(strings.TrimSuffix(strings.ToLower(value), "ms"))
		case "fps":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				u.FPS = f
			}
		default:
			if u.Extra == nil {
				u.Extra = make(map[string]string)
			}
			u.Extra[key] = value
		}
	}
	return u, true
}
