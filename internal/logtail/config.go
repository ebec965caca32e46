package logtail

import (
	"context"
	"time"

	"onionctl/internal/config"
	"onionctl/pkg/logging"
)

// BuildSources turns configured log source definitions into sources. circuitQuery backs
// sources of kind "circuits"; definitions it cannot serve are skipped with a warning.
func BuildSources(defs []config.LogSourceDefinition, pollInterval time.Duration, circuitQuery func(ctx context.Context) (string, error)) []Source {
	var out []Source
	for _, def := range defs {
		switch def.Kind {
		case config.LogSourceFile, "":
			if def.Path == "" {
				logging.Warn("LogTail", "Log source %q has no path, skipping", def.Name)
				continue
			}
			out = append(out, NewFileSource(def.Name, def.Path, def.MaxBytes, pollInterval))
		case config.LogSourceCircuits:
			if circuitQuery == nil {
				logging.Warn("LogTail", "Log source %q needs a circuit query, skipping", def.Name)
				continue
			}
			out = append(out, NewQuerySource(def.Name, circuitQuery))
		default:
			logging.Warn("LogTail", "Log source %q has unknown kind %q, skipping", def.Name, def.Kind)
		}
	}
	return out
}
