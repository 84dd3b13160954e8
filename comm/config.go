package comm

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/unixpickle/mpcomm/topology"
)

// An Algorithm selects how a rooted collective moves data
// between ranks.
type Algorithm int

const (
	// Tree uses O(log n) rounds.
	Tree Algorithm = iota

	// Linear has the root talk to every other rank
	// directly.
	Linear

	// Ring passes data from neighbor to neighbor.
	Ring
)

var algorithmNames = map[Algorithm]string{
	Tree:   "tree",
	Linear: "linear",
	Ring:   "ring",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm parses the name of an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for alg, algName := range algorithmNames {
		if algName == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("comm: unknown algorithm %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Algorithms picks the algorithm of every rooted
// collective.
// All ranks of a communicator share the same choice.
type Algorithms struct {
	Bcast  Algorithm
	Reduce Algorithm
}

// Config describes a set of workers and how they are
// wired together.
type Config struct {
	// Size is the number of workers (ranks).
	Size int

	// Topology decides which ranks get direct channels.
	// Derived communicators reuse the same Kind.
	Topology topology.Kind

	Algorithms Algorithms

	// Logger receives debug and warning records.
	// If nil, nothing is logged.
	Logger *slog.Logger
}

// Validate checks that the Config can be built.
func (c *Config) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("comm: invalid size %d", c.Size)
	}
	if _, err := topology.Edges(c.Topology, 1); err != nil {
		return err
	}
	for _, alg := range []Algorithm{c.Algorithms.Bcast, c.Algorithms.Reduce} {
		if _, ok := algorithmNames[alg]; !ok {
			return fmt.Errorf("comm: unknown algorithm %d", int(alg))
		}
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
