package headless

import "strings"

// WorldStatus is the parsed reply to "status" for the focused world.
type WorldStatus struct {
	Name           string            `json:"name"`
	SessionID      string            `json:"sessionId"`
	CurrentUsers   int               `json:"currentUsers"`
	PresentUsers   int               `json:"presentUsers"`
	MaxUsers       int               `json:"maxUsers"`
	Uptime         string            `json:"uptime"`
	AccessLevel    string            `json:"accessLevel"`
	Hidden         bool              `json:"hidden"`
	MobileFriendly bool              `json:"mobileFriendly"`
	Description    string            `json:"description"`
	Tags           []string          `json:"tags"`
	Fields         map[string]string `json:"fields"`
}

// Has reports whether the status block contained key.
func (s WorldStatus) Has(key string) bool {
	_, ok := s.Fields[key]
	return ok
}

// ParseStatus parses "Key: Value" lines. The last occurrence of a key wins.
// Every key is kept in Fields; known keys are also typed.
func ParseStatus(lines []string) WorldStatus {
	st := WorldStatus{Fields: make(map[string]string)}
	for _, line := range body(lines, CmdStatus) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		st.Fields[key] = strings.TrimSpace(value)
	}

	for key, value := range st.Fields {
		switch key {
		case "Name":
			st.Name = value
		case "SessionID":
			st.SessionID = value
		case "Current Users":
			st.CurrentUsers = atoi(value)
		case "Present Users":
			st.PresentUsers = atoi(value)
		case "Max Users":
			st.MaxUsers = atoi(value)
		case "Uptime":
			st.Uptime = FormatUptime(value)
		case "Access Level":
			st.AccessLevel = value
		case "Hidden from listing":
			st.Hidden = value == "True"
		case "Mobile Friendly":
			st.MobileFriendly = value == "True"
		case "Description":
			st.Description = value
		case "Tags":
			st.Tags = splitTags(value)
		}
	}
	return st
}

func splitTags(value string) []string {
	var tags []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
