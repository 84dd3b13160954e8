// Package comm implements communicators: ranked groups of
// workers that exchange messages point-to-point and take
// part in collective operations.
//
// Every worker holds its own *Comm and passes it to every
// operation explicitly; there is no process-wide default
// communicator.
// Collective operations must be called by every member of
// a communicator, in the same order and with matching
// parameters.
// Mismatches that a rank can observe fail with
// ErrCollectiveMismatch; mismatches that no rank can
// observe block forever, since the package has no
// timeouts.
package comm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/unixpickle/mpcomm/topology"
)

// A Comm is one worker's view of a communicator.
//
// A Comm is immutable.
// Deriving a new communicator (Split, CreateSubgroup, Dup)
// never changes the parent.
type Comm struct {
	world *World
	fab   *fabric
	rank  int
}

// invalidComm returns the handle given to ranks that are
// left out of a derived communicator.
func invalidComm(w *World) *Comm {
	return &Comm{world: w, rank: -1}
}

// Valid checks if the rank is a member of the
// communicator.
func (c *Comm) Valid() bool {
	return c.fab != nil
}

// Rank returns the index of this worker in the
// communicator, or -1 for an invalid communicator.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of members, or -1 for an
// invalid communicator.
func (c *Comm) Size() int {
	if c.fab == nil {
		return -1
	}
	return c.fab.size
}

// ID returns the identifier of the communicator
// generation.
// It is the same on every member.
func (c *Comm) ID() uuid.UUID {
	if c.fab == nil {
		return uuid.Nil
	}
	return c.fab.id
}

// Topology returns the topology of the communicator.
func (c *Comm) Topology() topology.Kind {
	if c.fab == nil {
		return c.world.config.Topology
	}
	return c.fab.kind
}

// ChannelTo returns the direct link to a peer.
//
// It fails with ErrNoDirectLink if the topology does not
// connect the two ranks directly; messages between such
// ranks are relayed through intermediate ranks instead.
//
// The channel ends behind a Link are owned by the rank's
// router, so the Link only describes the connection.
// Data always goes through Send and Recv, which use the
// Link when it exists.
func (c *Comm) ChannelTo(peer int) (*Link, error) {
	if err := c.checkRank(peer); err != nil {
		return nil, err
	}
	link, ok := c.router().links[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %d to %d in %s topology", ErrNoDirectLink, c.rank, peer,
			c.fab.kind)
	}
	return link, nil
}

// Hops returns how many links a message to a peer
// crosses.
func (c *Comm) Hops(peer int) (int, error) {
	if err := c.checkRank(peer); err != nil {
		return 0, err
	}
	return c.fab.routes.Hops(c.rank, peer), nil
}

// Free retires this rank from the communicator.
//
// Receives that are still waiting fail with
// ErrClosedChannel, and so do later operations.
// Messages addressed to the rank after it is freed are
// discarded.
// The rank keeps relaying traffic between its peers, and
// the channels are only closed once every member has
// called Free, so Free may be called right after a
// collective without waiting for slower peers.
// Freeing a communicator twice has no effect.
func (c *Comm) Free() error {
	if !c.Valid() {
		return ErrNotAMember
	}
	c.fab.free(c.rank)
	return nil
}

func (c *Comm) String() string {
	if !c.Valid() {
		return "Comm(invalid)"
	}
	return fmt.Sprintf("Comm(%s, rank %d/%d)", c.fab.id, c.rank, c.fab.size)
}

func (c *Comm) router() *router {
	return c.fab.routers[c.rank]
}

func (c *Comm) checkValid() error {
	if !c.Valid() {
		return ErrNotAMember
	}
	return nil
}

func (c *Comm) checkRank(rank int) error {
	if err := c.checkValid(); err != nil {
		return err
	}
	if rank < 0 || rank >= c.fab.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrRankOutOfRange, rank, c.fab.size)
	}
	return nil
}
