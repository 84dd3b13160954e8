package comm

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/unixpickle/mpcomm/channel"
	"github.com/unixpickle/mpcomm/topology"
)

// A Link is a rank's direct connection to one neighbor.
//
// Depending on the topology, a Link may only carry data in
// one direction.
// A Link can not be written to directly; Comm.Send routes
// through it.
type Link struct {
	peer int

	// lock serializes writers, so the send end only ever
	// has one writer at a time.
	lock sync.Mutex
	out  *channel.SendEnd
	in   *channel.RecvEnd
}

// Peer returns the rank on the other side of the Link.
func (l *Link) Peer() int {
	return l.peer
}

// CanSend checks if data can flow to the peer.
func (l *Link) CanSend() bool {
	return l.out != nil
}

// CanRecv checks if data can flow from the peer.
func (l *Link) CanRecv() bool {
	return l.in != nil
}

func (l *Link) send(env *envelope) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.out.Send(channel.Message{Tag: env.tag, Payload: env})
}

// A router is one rank's progress engine within one
// communicator.
//
// It reads every inbound channel, keeping messages for the
// local rank and relaying the rest one hop closer to
// their destination.
type router struct {
	rank   int
	routes *topology.RouteTable
	links  map[int]*Link
	box    mailbox
	logger *slog.Logger

	// retired is set once the rank has freed the
	// communicator; the router keeps relaying for its peers.
	retired atomic.Bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newRouter(rank int, routes *topology.RouteTable, links map[int]*Link,
	logger *slog.Logger) *router {
	r := &router{
		rank:   rank,
		routes: routes,
		links:  links,
		logger: logger,
	}
	for _, link := range links {
		if link.in != nil {
			r.wg.Add(1)
			go r.readLoop(link)
		}
	}
	return r
}

// send moves an envelope one hop closer to its
// destination, or into the mailbox if it is addressed to
// this rank.
func (r *router) send(env *envelope) error {
	if env.dst == r.rank {
		return r.box.deliver(env)
	}
	hop := r.routes.NextHop(r.rank, env.dst)
	link, ok := r.links[hop]
	if !ok || link.out == nil {
		panic(fmt.Sprintf("route from %d to %d uses missing link to %d", r.rank, env.dst, hop))
	}
	return link.send(env)
}

func (r *router) readLoop(link *Link) {
	defer r.wg.Done()
	for {
		msg, err := link.in.Recv(channel.AnyTag)
		if err != nil {
			r.logger.Debug("router stopped reading", "rank", r.rank, "peer", link.peer)
			return
		}
		env := msg.Payload.(*envelope)
		if err := r.send(env); err != nil {
			r.logger.Warn("dropped relayed message", "rank", r.rank, "src", env.src,
				"dst", env.dst, "tag", env.tag, "error", err)
			if env.onDeliver != nil {
				env.onDeliver(err)
			}
		}
	}
}

// retire stops the rank from sending and receiving while
// leaving relays running.
// Receives that are still waiting fail.
func (r *router) retire() {
	r.retired.Store(true)
	r.box.close()
}

// originate sends a message on behalf of the local rank.
func (r *router) originate(env *envelope) error {
	if r.retired.Load() {
		return ErrClosedChannel
	}
	return r.send(env)
}

// close releases every channel end owned by the rank.
// It must only be called once no peer relies on the rank
// to relay messages.
func (r *router) close() {
	r.closeOnce.Do(func() {
		for _, link := range r.links {
			if link.out != nil {
				link.out.Close()
			}
			if link.in != nil {
				link.in.Close()
			}
		}
		r.wg.Wait()
		r.box.close()
	})
}
