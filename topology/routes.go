package topology

import "fmt"

// A RouteTable stores, for every pair of ranks, the next
// hop a message takes on its way from source to
// destination.
//
// Every pair always uses the same path, so messages that
// are relayed through intermediate ranks keep their order.
type RouteTable struct {
	numRanks int
	next     []int
	hops     []int
}

// Routes computes shortest-path routes through a Graph.
//
// Ties are broken towards the lowest-numbered neighbor.
// An error is returned if some rank cannot reach another.
func Routes(g *Graph) (*RouteTable, error) {
	n := g.NumRanks()
	r := &RouteTable{
		numRanks: n,
		next:     make([]int, n*n),
		hops:     make([]int, n*n),
	}
	for dst := 0; dst < n; dst++ {
		// Breadth-first search backwards from the
		// destination, so every rank learns its first hop.
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[dst] = 0
		r.next[dst*n+dst] = dst
		queue := []int{dst}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for src := 0; src < n; src++ {
				if dist[src] == -1 && g.Has(src, cur) {
					dist[src] = dist[cur] + 1
					queue = append(queue, src)
				}
			}
		}
		for src := 0; src < n; src++ {
			if dist[src] == -1 {
				return nil, fmt.Errorf("topology: rank %d cannot reach rank %d", src, dst)
			}
			r.hops[src*n+dst] = dist[src]
			if src == dst {
				continue
			}
			for _, neighbor := range g.Neighbors(src) {
				if dist[neighbor] == dist[src]-1 {
					r.next[src*n+dst] = neighbor
					break
				}
			}
		}
	}
	return r, nil
}

// NextHop returns the neighbor of src that a message for
// dst should be sent to.
//
// If src == dst, src is returned.
func (r *RouteTable) NextHop(src, dst int) int {
	r.checkBounds(src, dst)
	return r.next[src*r.numRanks+dst]
}

// Hops returns the number of links on the path from src
// to dst.
func (r *RouteTable) Hops(src, dst int) int {
	r.checkBounds(src, dst)
	return r.hops[src*r.numRanks+dst]
}

// Path returns every rank visited on the way from src to
// dst, including both endpoints.
func (r *RouteTable) Path(src, dst int) []int {
	path := []int{src}
	for cur := src; cur != dst; {
		cur = r.NextHop(cur, dst)
		path = append(path, cur)
	}
	return path
}

func (r *RouteTable) checkBounds(src, dst int) {
	if src < 0 || dst < 0 || src >= r.numRanks || dst >= r.numRanks {
		panic("index out of bounds")
	}
}
