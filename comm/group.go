package comm

import (
	"fmt"
	"slices"
)

// Undefined is a Split key that leaves the caller out of
// every new communicator.
const Undefined = -1

// Split partitions the communicator into disjoint
// communicators, one per distinct key.
//
// Members passing the same key end up in the same
// communicator, ranked in the order of their parent ranks.
// Members passing a negative key (such as Undefined)
// receive an invalid communicator.
// Every member must call Split.
func (c *Comm) Split(key int) (*Comm, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	keys, err := AllGather(c, key)
	if err != nil {
		return nil, err
	}
	if key < 0 {
		return invalidComm(c.world), nil
	}
	var members []int
	for rank, k := range keys {
		if k == key {
			members = append(members, rank)
		}
	}
	f := &frame{op: opSplit, root: members[0], detail: fmt.Sprintf("key=%d", key)}
	return c.derive(members, f)
}

// CreateSubgroup creates a communicator out of some of the
// members.
//
// Rank i of the new communicator is parent rank ranks[i].
// Every listed member must call CreateSubgroup with the
// same list; other members receive an invalid
// communicator without communicating.
func (c *Comm) CreateSubgroup(ranks []int) (*Comm, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: empty rank list", ErrInvalidGroup)
	}
	seen := make([]bool, c.Size())
	for _, rank := range ranks {
		if rank < 0 || rank >= c.Size() {
			return nil, fmt.Errorf("%w: rank %d not in [0, %d)", ErrInvalidGroup, rank, c.Size())
		}
		if seen[rank] {
			return nil, fmt.Errorf("%w: duplicate rank %d", ErrInvalidGroup, rank)
		}
		seen[rank] = true
	}
	if !seen[c.rank] {
		return invalidComm(c.world), nil
	}
	f := &frame{op: opSubgroup, root: ranks[0], detail: fmt.Sprintf("ranks=%v", ranks)}
	return c.derive(ranks, f)
}

// Dup creates a communicator with the same members and
// ranks, but its own channels.
//
// Traffic on the copy never matches traffic on the
// original.
// Every member must call Dup.
func (c *Comm) Dup() (*Comm, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	members := make([]int, c.Size())
	for i := range members {
		members[i] = i
	}
	return c.derive(members, &frame{op: opDup, root: 0})
}

// derive builds a communicator whose rank i is parent rank
// members[i].
//
// The first member builds the channels and sends them to
// the rest over the parent.
func (c *Comm) derive(members []int, f *frame) (*Comm, error) {
	newRank := slices.Index(members, c.rank)
	if newRank < 0 {
		panic("caller is not a member of the derived group")
	}
	leader := members[0]
	if c.rank != leader {
		fab, err := recvValue[*fabric](c, leader, f)
		if err != nil {
			return nil, err
		}
		return &Comm{world: c.world, fab: fab, rank: newRank}, nil
	}

	fab, err := c.world.newFabric(len(members))
	if err != nil {
		for _, member := range members[1:] {
			if sendErr := c.collAbort(member, f, err); sendErr != nil {
				return nil, sendErr
			}
		}
		return nil, err
	}
	c.world.logger.Debug("derived communicator", "parent", c.fab.id.String(),
		"comm", fab.id.String(), "op", collOpNames[f.op], "members", members)
	for _, member := range members[1:] {
		if err := c.collSend(member, f, fab); err != nil {
			return nil, err
		}
	}
	return &Comm{world: c.world, fab: fab, rank: newRank}, nil
}
