package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/mpcomm/comm"
	"github.com/unixpickle/mpcomm/topology"
)

// BenchConfig describes a benchmark run.
//
// It can be loaded from a TOML file; command-line flags
// override the file.
type BenchConfig struct {
	Workers     int            `toml:"workers"`
	Topology    topology.Kind  `toml:"topology"`
	Bcast       comm.Algorithm `toml:"bcast"`
	Reduce      comm.Algorithm `toml:"reduce"`
	Repetitions int            `toml:"repetitions"`
	MinPower    int            `toml:"min_power"`
	MaxPower    int            `toml:"max_power"`
	Windows     []int          `toml:"windows"`
	Verbose     bool           `toml:"verbose"`
}

func DefaultBenchConfig() *BenchConfig {
	return &BenchConfig{
		Workers:     4,
		Topology:    topology.Full,
		Bcast:       comm.Tree,
		Reduce:      comm.Tree,
		Repetitions: 20,
		MinPower:    3,
		MaxPower:    16,
		Windows:     []int{1, 4, 16, 64},
	}
}

// LoadBenchConfig parses the flags of a subcommand.
//
// If a config file is named, it is read before the other
// flags are applied.
func LoadBenchConfig(name string, args []string) (*BenchConfig, error) {
	config := DefaultBenchConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	workers := fs.Int("workers", config.Workers, "number of workers")
	kind := fs.String("topology", config.Topology.String(), "channel topology")
	bcast := fs.String("bcast", config.Bcast.String(), "broadcast algorithm")
	reduce := fs.String("reduce", config.Reduce.String(), "reduce algorithm")
	reps := fs.Int("reps", config.Repetitions, "repetitions per measurement")
	minPower := fs.Int("min-power", config.MinPower, "log2 of the smallest message in bytes")
	maxPower := fs.Int("max-power", config.MaxPower, "log2 of the largest message in bytes")
	verbose := fs.Bool("v", false, "log communicator events")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, essentials.AddCtx("load config", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, essentials.AddCtx("load config", err)
		}
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "workers":
			config.Workers = *workers
		case "topology":
			config.Topology, err = topology.ParseKind(*kind)
		case "bcast":
			config.Bcast, err = comm.ParseAlgorithm(*bcast)
		case "reduce":
			config.Reduce, err = comm.ParseAlgorithm(*reduce)
		case "reps":
			config.Repetitions = *reps
		case "min-power":
			config.MinPower = *minPower
		case "max-power":
			config.MaxPower = *maxPower
		case "v":
			config.Verbose = *verbose
		}
	})
	if err != nil {
		return nil, err
	}
	return config, config.Validate()
}

// Validate checks the ranges of the fields.
func (b *BenchConfig) Validate() error {
	if b.Workers < 2 {
		return fmt.Errorf("need at least 2 workers, got %d", b.Workers)
	}
	if b.Repetitions < 1 {
		return fmt.Errorf("need at least 1 repetition, got %d", b.Repetitions)
	}
	if b.MinPower < 0 || b.MaxPower < b.MinPower || b.MaxPower > 30 {
		return fmt.Errorf("invalid message size range 2^%d to 2^%d", b.MinPower, b.MaxPower)
	}
	for _, w := range b.Windows {
		if w < 1 {
			return fmt.Errorf("invalid window size %d", w)
		}
	}
	return nil
}

// CommConfig creates the communicator config for a given
// topology.
func (b *BenchConfig) CommConfig(kind topology.Kind) comm.Config {
	return comm.Config{
		Size:     b.Workers,
		Topology: kind,
		Algorithms: comm.Algorithms{
			Bcast:  b.Bcast,
			Reduce: b.Reduce,
		},
		Logger: benchLogger(b.Verbose),
	}
}
