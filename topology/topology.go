// Package topology builds the edge sets that decide which
// pairs of ranks are connected by a direct channel.
package topology

import (
	"fmt"
	"sort"
	"strings"
)

// A Kind is a wiring strategy for a set of ranks.
type Kind int

const (
	// Full connects every ordered pair of ranks.
	Full Kind = iota

	// Ring connects rank i to rank i+1 (mod n) in one
	// direction only.
	Ring

	// DuplexRing connects rank i to both of its ring
	// neighbors.
	DuplexRing

	// Star connects rank 0 to every other rank in both
	// directions.
	Star

	// Tree connects every rank to its binary-tree parent
	// (i-1)/2 in both directions.
	Tree
)

var kindNames = map[Kind]string{
	Full:       "full",
	Ring:       "ring",
	DuplexRing: "duplex-ring",
	Star:       "star",
	Tree:       "tree",
}

// Kinds lists every supported Kind.
func Kinds() []Kind {
	return []Kind{Full, Ring, DuplexRing, Star, Tree}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the name of a Kind, as produced by
// Kind.String().
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, kindName := range kindNames {
		if kindName == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("topology: unknown kind %q", name)
}

// UnmarshalText implements encoding.TextUnmarshaler, so a
// Kind can be read from configuration files.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("topology: unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// An Edge is a direct, uni-directional link from one rank
// to another.
type Edge struct {
	From int
	To   int
}

// Edges computes the edge set of a topology with n ranks.
//
// The result is sorted and never contains self loops, so
// the same (kind, n) always yields the same edges.
func Edges(kind Kind, n int) ([]Edge, error) {
	if n < 1 {
		return nil, fmt.Errorf("topology: invalid number of ranks %d", n)
	}
	set := map[Edge]bool{}
	add := func(from, to int) {
		if from != to {
			set[Edge{From: from, To: to}] = true
		}
	}
	switch kind {
	case Full:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				add(i, j)
			}
		}
	case Ring:
		for i := 0; i < n; i++ {
			add(i, (i+1)%n)
		}
	case DuplexRing:
		for i := 0; i < n; i++ {
			add(i, (i+1)%n)
			add((i+1)%n, i)
		}
	case Star:
		for i := 1; i < n; i++ {
			add(0, i)
			add(i, 0)
		}
	case Tree:
		for i := 1; i < n; i++ {
			add(i, TreeParent(i))
			add(TreeParent(i), i)
		}
	default:
		return nil, fmt.Errorf("topology: unknown kind %d", int(kind))
	}

	edges := make([]Edge, 0, len(set))
	for e := range set {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

// TreeParent returns the parent of index i in a binary
// heap, or -1 for the root.
func TreeParent(i int) int {
	if i == 0 {
		return -1
	}
	return (i - 1) / 2
}

// TreeChildren returns the children of index i in a binary
// heap with n nodes.
//
// There may be no children.
func TreeChildren(i, n int) []int {
	var res []int
	for _, child := range []int{2*i + 1, 2*i + 2} {
		if child < n {
			res = append(res, child)
		}
	}
	return res
}
