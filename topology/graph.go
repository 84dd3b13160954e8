package topology

// A Graph is an adjacency matrix.
//
// Entry (from, to) is true when there is a direct link
// from rank from (row) to rank to (column).
type Graph struct {
	numRanks int
	links    []bool
}

// NewGraph creates a Graph with no links.
func NewGraph(numRanks int) *Graph {
	return &Graph{
		numRanks: numRanks,
		links:    make([]bool, numRanks*numRanks),
	}
}

// Build creates the Graph of a topology with n ranks.
func Build(kind Kind, n int) (*Graph, error) {
	edges, err := Edges(kind, n)
	if err != nil {
		return nil, err
	}
	g := NewGraph(n)
	for _, e := range edges {
		g.Set(e.From, e.To, true)
	}
	return g, nil
}

// NumRanks returns the number of ranks.
func (g *Graph) NumRanks() int {
	return g.numRanks
}

// Has checks if there is a link from one rank to another.
func (g *Graph) Has(from, to int) bool {
	g.checkBounds(from, to)
	return g.links[from*g.numRanks+to]
}

// Set adds or removes a link.
func (g *Graph) Set(from, to int, linked bool) {
	g.checkBounds(from, to)
	g.links[from*g.numRanks+to] = linked
}

// OutDegree counts the links leaving a rank.
func (g *Graph) OutDegree(from int) int {
	var n int
	for to := 0; to < g.numRanks; to++ {
		if g.Has(from, to) {
			n++
		}
	}
	return n
}

// InDegree counts the links arriving at a rank.
func (g *Graph) InDegree(to int) int {
	var n int
	for from := 0; from < g.numRanks; from++ {
		if g.Has(from, to) {
			n++
		}
	}
	return n
}

// Neighbors returns the ranks that from links to, in
// ascending order.
func (g *Graph) Neighbors(from int) []int {
	var res []int
	for to := 0; to < g.numRanks; to++ {
		if g.Has(from, to) {
			res = append(res, to)
		}
	}
	return res
}

// Edges lists every link in the Graph in sorted order.
func (g *Graph) Edges() []Edge {
	var res []Edge
	for from := 0; from < g.numRanks; from++ {
		for _, to := range g.Neighbors(from) {
			res = append(res, Edge{From: from, To: to})
		}
	}
	return res
}

func (g *Graph) checkBounds(from, to int) {
	if from < 0 || to < 0 || from >= g.numRanks || to >= g.numRanks {
		panic("index out of bounds")
	}
}
