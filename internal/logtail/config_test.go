package logtail

import (
	"context"
	"testing"

	"onionctl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSources(t *testing.T) {
	query := func(context.Context) (string, error) { return "", nil }
	defs := []config.LogSourceDefinition{
		{Name: "tor", Kind: config.LogSourceFile, Path: "/tmp/tor.log"},
		{Name: "circuits", Kind: config.LogSourceCircuits},
		{Name: "nopath", Kind: config.LogSourceFile},
		{Name: "weird", Kind: "journald", Path: "x"},
	}

	sources := BuildSources(defs, 0, query)
	require.Len(t, sources, 2)
	assert.IsType(t, &FileSource{}, sources[0])
	assert.IsType(t, &QuerySource{}, sources[1])
	assert.Equal(t, "circuits", sources[1].Name())

	assert.Len(t, BuildSources(defs, 0, nil), 1)
}
