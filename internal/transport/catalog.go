// Package transport is the static enumeration of selectable pluggable transports.
//
// The catalog decouples the order and labels the UI shows from the raw TransportKind values
// and is built from configuration, so adding a transport is a one-place change.
package transport

import (
	"fmt"
	"sort"
	"strings"

	"onionctl/internal/bridges"
	"onionctl/internal/config"
	"onionctl/internal/ctlerr"
	"onionctl/pkg/logging"
)

// Catalog is an immutable lookup of transport definitions.
type Catalog struct {
	defs  map[bridges.TransportKind]config.TransportDefinition
	order []bridges.TransportKind
}

// NewCatalog builds a catalog from definitions. Definitions with an unknown kind are skipped
// with a warning; later duplicates replace earlier ones.
func NewCatalog(defs []config.TransportDefinition) *Catalog {
	c := &Catalog{defs: make(map[bridges.TransportKind]config.TransportDefinition)}
	for _, def := range defs {
		kind, err := bridges.ParseTransportKind(def.Kind)
		if err != nil {
			logging.Warn("Transport", "Ignoring transport definition: %v", err)
			continue
		}
		def.Kind = string(kind)
		c.defs[kind] = def
	}

	for kind := range c.defs {
		c.order = append(c.order, kind)
	}
	sort.SliceStable(c.order, func(i, j int) bool {
		a, b := c.defs[c.order[i]], c.defs[c.order[j]]
		if a.SortKey != b.SortKey {
			return a.SortKey < b.SortKey
		}
		return a.Kind < b.Kind
	})
	return c
}

// DefaultCatalog returns the catalog of built-in transports.
func DefaultCatalog() *Catalog {
	return NewCatalog(config.DefaultTransports())
}

// Available returns the selectable transports in display order.
func (c *Catalog) Available() []bridges.TransportKind {
	out := make([]bridges.TransportKind, len(c.order))
	copy(out, c.order)
	return out
}

// Has reports whether kind is offered by this catalog.
func (c *Catalog) Has(kind bridges.TransportKind) bool {
	_, ok := c.defs[kind]
	return ok
}

// DisplayName returns the label for kind, falling back to the raw tag.
func (c *Catalog) DisplayName(kind bridges.TransportKind) string {
	if def, ok := c.defs[kind]; ok && def.DisplayName != "" {
		return def.DisplayName
	}
	return string(kind)
}

// Definition returns the full definition for kind.
func (c *Catalog) Definition(kind bridges.TransportKind) (config.TransportDefinition, bool) {
	def, ok := c.defs[kind]
	return def, ok
}

// Check reports whether cfg can be handed to the tunnel: the transport must be offered, and
// a built-in transport must resolve to at least one bridge line.
func (c *Catalog) Check(cfg bridges.BridgeConfig) error {
	kind := cfg.ActiveTransport
	if kind == "" {
		kind = bridges.TransportNone
	}
	def, ok := c.defs[kind]
	if !ok {
		return &ctlerr.ValidationError{Field: "transport", Reason: fmt.Sprintf("transport %q is not offered", kind)}
	}
	if kind != bridges.TransportNone && kind != bridges.TransportCustom && len(def.BuiltinBridges) == 0 {
		return &ctlerr.ValidationError{Field: "transport", Reason: fmt.Sprintf("transport %q has no built-in bridges configured", kind)}
	}
	if kind == bridges.TransportCustom && len(c.BridgeLines(cfg)) == 0 {
		return &ctlerr.ValidationError{Field: "customBridges", Reason: "custom bridges need at least one bridge line"}
	}
	return nil
}

// BridgeLines resolves the Bridge lines the tunnel should use for cfg: the built-in lines of
// the selected transport, or the enabled custom lines when custom is selected. A leading
// "Bridge" keyword, as copied from torrc or bridges.torproject.org, is dropped.
func (c *Catalog) BridgeLines(cfg bridges.BridgeConfig) []string {
	switch cfg.ActiveTransport {
	case bridges.TransportNone, "":
		return nil
	case bridges.TransportCustom:
		lines := cfg.EnabledLines()
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			if l = trimBridgeKeyword(l); l != "" {
				out = append(out, l)
			}
		}
		return out
	default:
		def, ok := c.defs[cfg.ActiveTransport]
		if !ok {
			return nil
		}
		return append([]string(nil), def.BuiltinBridges...)
	}
}

// PluginLine returns the ClientTransportPlugin value for kind, if any.
func (c *Catalog) PluginLine(kind bridges.TransportKind) string {
	return c.defs[kind].PluginLine
}

func trimBridgeKeyword(line string) string {
	fields := strings.Fields(line)
	if len(fields) > 0 && strings.EqualFold(fields[0], "bridge") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}
