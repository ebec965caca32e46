// Package tunnel defines the narrow interface the control layer uses to drive the external
// tunnel daemon.
package tunnel

import (
	"context"
	"strings"
	"time"

	"onionctl/internal/bridges"
)

// Control is the external tunnel process as seen by the control layer.
//
// Implementations return plain errors; callers convert them into ctlerr kinds at their own
// boundary.
type Control interface {
	// Start brings the tunnel up with cfg and blocks until it is usable, the context is
	// cancelled or it fails. progress receives bootstrap percentages (0-100) and may be nil.
	Start(ctx context.Context, cfg bridges.BridgeConfig, progress func(int)) error

	// Stop takes the tunnel down. It is best-effort.
	Stop(ctx context.Context) error

	// ListCircuits returns the circuits the tunnel currently has open.
	ListCircuits(ctx context.Context) ([]CircuitDescriptor, error)

	// CloseCircuits closes the given circuits as one batch.
	CloseCircuits(ctx context.Context, ids []string) error
}

// Relay is one hop of a circuit path.
type Relay struct {
	Fingerprint string `json:"fingerprint"`
	Nickname    string `json:"nickname,omitempty"`
}

// Label is the nickname when known, else the fingerprint.
func (r Relay) Label() string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return r.Fingerprint
}

// CircuitDescriptor is an immutable snapshot of one circuit.
type CircuitDescriptor struct {
	ID        string    `json:"id"`
	Path      []Relay   `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
}

// PathString renders the path as "a > b > c".
func (c CircuitDescriptor) PathString() string {
	labels := make([]string, 0, len(c.Path))
	for _, r := range c.Path {
		labels = append(labels, r.Label())
	}
	return strings.Join(labels, " > ")
}

// IDs collects the identifiers of a batch.
func IDs(circuits []CircuitDescriptor) []string {
	ids := make([]string, 0, len(circuits))
	for _, c := range circuits {
		ids = append(ids, c.ID)
	}
	return ids
}
