//go:build !unix

package runtime

import "errors"

// LocalManager is a stub for platforms without PTY support.
type LocalManager struct {
	StubManager
}

// NewLocalManager returns an error on platforms without PTY support.
func NewLocalManager(opts Options) (*LocalManager, error) {
	return nil, errors.New("local runtime requires a unix platform")
}
