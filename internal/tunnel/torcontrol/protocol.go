package torcontrol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"onionctl/internal/tunnel"
)

// parseBootstrapProgress extracts PROGRESS from a status/bootstrap-phase value such as
// `NOTICE BOOTSTRAP PROGRESS=85 TAG=ap_conn SUMMARY="Connecting"`.
func parseBootstrapProgress(value string) (int, error) {
	for _, field := range strings.Fields(value) {
		if v, ok := strings.CutPrefix(field, "PROGRESS="); ok {
			p, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("bad bootstrap progress %q", v)
			}
			return p, nil
		}
	}
	return 0, fmt.Errorf("no bootstrap progress in %q", value)
}

// bootstrapWarning returns the WARNING text of a WARN bootstrap status, if any.
func bootstrapWarning(value string) string {
	if !strings.HasPrefix(value, "WARN") {
		return ""
	}
	i := strings.Index(value, "WARNING=")
	if i < 0 {
		return ""
	}
	rest := value[i+len("WARNING="):]
	if strings.HasPrefix(rest, `"`) {
		if end := strings.Index(rest[1:], `"`); end >= 0 {
			return rest[1 : end+1]
		}
		return strings.Trim(rest, `"`)
	}
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		return rest[:sp]
	}
	return rest
}

const timeCreatedLayout = "2006-01-02T15:04:05.999999"

// parseCircuitStatus parses the body of GETINFO circuit-status, one circuit per line:
//
//	16 BUILT $AAAA~alpha,$BBBB~beta PURPOSE=GENERAL TIME_CREATED=2024-05-01T10:00:00.000000
func parseCircuitStatus(body string) []tunnel.CircuitDescriptor {
	var out []tunnel.CircuitDescriptor
	for _, raw := range strings.Split(body, "\n") {
		fields := strings.Fields(raw)
		if len(fields) < 2 {
			continue
		}
		c := tunnel.CircuitDescriptor{ID: fields[0], Status: fields[1]}
		rest := fields[2:]
		if len(rest) > 0 && (strings.HasPrefix(rest[0], "$") || !strings.Contains(rest[0], "=")) {
			c.Path = parsePath(rest[0])
			rest = rest[1:]
		}
		for _, kv := range rest {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch key {
			case "PURPOSE":
				c.Purpose = value
			case "TIME_CREATED":
				if t, err := time.ParseInLocation(timeCreatedLayout, value, time.UTC); err == nil {
					c.CreatedAt = t
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func parsePath(s string) []tunnel.Relay {
	var relays []tunnel.Relay
	for _, hop := range strings.Split(s, ",") {
		if hop == "" {
			continue
		}
		var r tunnel.Relay
		switch {
		case strings.Contains(hop, "~"):
			r.Fingerprint, r.Nickname, _ = strings.Cut(hop, "~")
		case strings.Contains(hop, "="):
			r.Fingerprint, r.Nickname, _ = strings.Cut(hop, "=")
		case strings.HasPrefix(hop, "$"):
			r.Fingerprint = hop
		default:
			r.Nickname = hop
		}
		r.Fingerprint = strings.TrimPrefix(r.Fingerprint, "$")
		relays = append(relays, r)
	}
	return relays
}
