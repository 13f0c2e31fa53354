package session

import (
	"time"

	"github.com/headlessctl/headlessctl/internal/console"
)

// Snapshot is a persisted copy of a container's console history.
type Snapshot struct {
	Container string                `json:"container"`
	SavedAt   time.Time             `json:"saved_at"`
	Total     uint64                `json:"total"`            // lines ever seen when saved
	Reason    string                `json:"reason,omitempty"` // "shutdown" | "manual"
	Lines     []console.ConsoleLine `json:"lines"`
}
