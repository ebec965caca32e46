package bridges

import (
	"fmt"
	"strings"

	"onionctl/internal/ctlerr"
)

// TransportKind names a pluggable transport selection.
type TransportKind string

const (
	TransportNone      TransportKind = "none"
	TransportObfs4     TransportKind = "obfs4"
	TransportSnowflake TransportKind = "snowflake"
	TransportCustom    TransportKind = "custom"
)

// KnownKinds lists every transport kind this build understands, in declaration order.
// Display order is the catalog's business.
var KnownKinds = []TransportKind{TransportNone, TransportObfs4, TransportSnowflake, TransportCustom}

// ParseTransportKind maps a tag to a TransportKind. The empty tag means none.
func ParseTransportKind(s string) (TransportKind, error) {
	k := TransportKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return TransportNone, nil
	}
	if !k.Valid() {
		return "", fmt.Errorf("unknown transport %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of KnownKinds.
func (k TransportKind) Valid() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// BridgeConfig is the persisted transport selection plus the user's custom bridge lines.
type BridgeConfig struct {
	ActiveTransport TransportKind
	CustomLines     []string
}

// DefaultConfig is used when nothing is persisted or the persisted blob is unreadable.
func DefaultConfig() BridgeConfig {
	return BridgeConfig{ActiveTransport: TransportNone}
}

// IsComment reports whether a bridge line is disabled.
func IsComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// EnabledLines returns the custom lines that are not comments.
func (c BridgeConfig) EnabledLines() []string {
	var out []string
	for _, l := range c.CustomLines {
		if l = strings.TrimSpace(l); l != "" && !IsComment(l) {
			out = append(out, l)
		}
	}
	return out
}

// Normalize trims every line and drops blank ones. An empty list becomes nil.
func (c BridgeConfig) Normalize() BridgeConfig {
	out := BridgeConfig{ActiveTransport: c.ActiveTransport}
	if out.ActiveTransport == "" {
		out.ActiveTransport = TransportNone
	}
	for _, l := range c.CustomLines {
		if l = strings.TrimSpace(l); l != "" {
			out.CustomLines = append(out.CustomLines, l)
		}
	}
	return out
}

// Validate enforces the semantic rules checked before a save: the transport must be known,
// and a custom selection needs at least one enabled line. Custom lines are advisory for every
// other transport.
func (c BridgeConfig) Validate() error {
	if !c.ActiveTransport.Valid() {
		return &ctlerr.ValidationError{Field: "transport", Reason: fmt.Sprintf("unknown transport %q", c.ActiveTransport)}
	}
	if c.ActiveTransport == TransportCustom && len(c.EnabledLines()) == 0 {
		return &ctlerr.ValidationError{Field: "customBridges", Reason: "custom bridges need at least one line that is not a comment"}
	}
	return nil
}

// Equal compares two configs line by line.
func (c BridgeConfig) Equal(o BridgeConfig) bool {
	if c.ActiveTransport != o.ActiveTransport || len(c.CustomLines) != len(o.CustomLines) {
		return false
	}
	for i := range c.CustomLines {
		if c.CustomLines[i] != o.CustomLines[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with c.
func (c BridgeConfig) Clone() BridgeConfig {
	out := BridgeConfig{ActiveTransport: c.ActiveTransport}
	if c.CustomLines != nil {
		out.CustomLines = append([]string(nil), c.CustomLines...)
	}
	return out
}
