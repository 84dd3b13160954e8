package comm

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/unixpickle/mpcomm/channel"
	"github.com/unixpickle/mpcomm/topology"
)

// A fabric is one generation of channels: every channel
// of one communicator, plus the routers of its ranks.
//
// Fabrics never share channels, so a derived communicator
// can not reach back into its parent's channels.
type fabric struct {
	id         uuid.UUID
	kind       topology.Kind
	size       int
	algorithms Algorithms
	routes     *topology.RouteTable
	routers    []*router

	lock  sync.Mutex
	freed []bool
	onEnd func()
}

func newFabric(kind topology.Kind, size int, algs Algorithms, logger *slog.Logger) (*fabric, error) {
	g, err := topology.Build(kind, size)
	if err != nil {
		return nil, err
	}
	routes, err := topology.Routes(g)
	if err != nil {
		return nil, err
	}
	f := &fabric{
		id:         uuid.New(),
		kind:       kind,
		size:       size,
		algorithms: algs,
		routes:     routes,
		routers:    make([]*router, size),
		freed:      make([]bool, size),
	}

	links := make([]map[int]*Link, size)
	for i := range links {
		links[i] = map[int]*Link{}
	}
	getLink := func(rank, peer int) *Link {
		if l, ok := links[rank][peer]; ok {
			return l
		}
		l := &Link{peer: peer}
		links[rank][peer] = l
		return l
	}
	for _, e := range g.Edges() {
		send, recv := channel.New().Ends()
		getLink(e.From, e.To).out = send
		getLink(e.To, e.From).in = recv
	}

	logger = logger.With("comm", f.id.String())
	for rank := range f.routers {
		f.routers[rank] = newRouter(rank, routes, links[rank], logger)
	}
	logger.Debug("built communicator", "topology", kind.String(), "size", size,
		"channels", len(g.Edges()))
	return f, nil
}

// free retires one rank.
//
// Channels stay open, and every router keeps relaying,
// until all ranks are freed; then the channels are closed
// and onEnd is called.
func (f *fabric) free(rank int) {
	f.lock.Lock()
	if f.freed[rank] {
		f.lock.Unlock()
		return
	}
	f.freed[rank] = true
	allFreed := true
	for _, freed := range f.freed {
		allFreed = allFreed && freed
	}
	onEnd := f.onEnd
	f.lock.Unlock()

	f.routers[rank].retire()
	if !allFreed {
		return
	}
	for _, r := range f.routers {
		r.close()
	}
	if onEnd != nil {
		onEnd()
	}
}

func (f *fabric) close() {
	for rank := range f.routers {
		f.free(rank)
	}
}
