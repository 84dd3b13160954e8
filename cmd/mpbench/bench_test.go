package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/unixpickle/mpcomm/comm"
	"github.com/unixpickle/mpcomm/topology"
)

func smallBenchConfig() *BenchConfig {
	config := DefaultBenchConfig()
	config.Repetitions = 1
	config.MinPower = 0
	config.MaxPower = 3
	config.Windows = []int{1, 3}
	return config
}

func TestCollectivesFewFloats(t *testing.T) {
	// One float per message, but more workers than floats.
	config := smallBenchConfig()
	require.NoError(t, config.Validate())
	table, err := Collectives(config)
	require.NoError(t, err)
	require.Len(t, table, 1+len(topology.Kinds()))
	for _, row := range table {
		require.Len(t, row, 7)
	}
}

func TestPointToPointBenches(t *testing.T) {
	config := smallBenchConfig()
	config.Topology = topology.Ring

	table, err := PingPong(config)
	require.NoError(t, err)
	require.Len(t, table, 5)

	table, err = Window(config)
	require.NoError(t, err)
	require.Len(t, table, 3)

	table, err = Layouts(config)
	require.NoError(t, err)
	require.Len(t, table, 5)
	require.Len(t, table[1], 4)
}

func TestLoadBenchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	data := []byte(`
workers = 6
topology = "star"
reduce = "ring"
repetitions = 3
windows = [2, 8]
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	config, err := LoadBenchConfig("pingpong", []string{"-config", path, "-workers", "3",
		"-bcast", "linear"})
	require.NoError(t, err)
	require.Equal(t, 3, config.Workers)
	require.Equal(t, topology.Star, config.Topology)
	require.Equal(t, comm.Linear, config.Bcast)
	require.Equal(t, comm.Ring, config.Reduce)
	require.Equal(t, 3, config.Repetitions)
	require.Equal(t, []int{2, 8}, config.Windows)

	_, err = LoadBenchConfig("pingpong", []string{"-workers", "1"})
	require.Error(t, err)
	_, err = LoadBenchConfig("pingpong", []string{"-topology", "cube"})
	require.Error(t, err)
}
