package comm

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/mpcomm/topology"
	"golang.org/x/sync/errgroup"
)

type splitResult struct {
	Rank int
	Size int
	ID   uuid.UUID
	Sum  int
}

func TestSplitParity(t *testing.T) {
	forEachConfig(t, func(t *testing.T, config Config) {
		results, err := RunCollect(config, func(c *Comm) (splitResult, error) {
			sub, err := c.Split(c.Rank() % 2)
			if err != nil {
				return splitResult{}, err
			}
			if err := sub.Barrier(); err != nil {
				return splitResult{}, err
			}
			sum, err := AllReduce(sub, c.Rank(), Sum[int]())
			if err != nil {
				return splitResult{}, err
			}
			// The parent must keep working after the split.
			if err := c.Barrier(); err != nil {
				return splitResult{}, err
			}
			res := splitResult{Rank: sub.Rank(), Size: sub.Size(), ID: sub.ID(), Sum: sum}
			return res, sub.Free()
		})
		require.NoError(t, err)

		var sums [2]int
		var sizes [2]int
		for rank := 0; rank < config.Size; rank++ {
			sums[rank%2] += rank
			sizes[rank%2]++
		}
		for rank, res := range results {
			require.Equal(t, rank/2, res.Rank)
			require.Equal(t, sizes[rank%2], res.Size)
			require.Equal(t, sums[rank%2], res.Sum)
			require.Equal(t, results[rank%2].ID, res.ID)
			require.NotEqual(t, uuid.Nil, res.ID)
		}
		if config.Size > 1 {
			require.NotEqual(t, results[0].ID, results[1].ID)
		}
	})
}

func TestSplitUndefined(t *testing.T) {
	errs := rankErrors(t, Config{Size: 3, Topology: topology.Ring}, func(c *Comm) error {
		key := 0
		if c.Rank() == 1 {
			key = Undefined
		}
		sub, err := c.Split(key)
		if err != nil {
			return err
		}
		if c.Rank() != 1 {
			return sub.Barrier()
		}
		if sub.Valid() || sub.Rank() != -1 || sub.Size() != -1 {
			t.Errorf("expected invalid communicator but got %v", sub)
		}
		return sub.Barrier()
	})
	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], ErrNotAMember)
	require.NoError(t, errs[2])
}

func TestCreateSubgroupReversed(t *testing.T) {
	forEachConfig(t, func(t *testing.T, config Config) {
		ranks := make([]int, config.Size)
		for i := range ranks {
			ranks[i] = config.Size - 1 - i
		}
		results, err := RunCollect(config, func(c *Comm) ([]int, error) {
			sub, err := c.CreateSubgroup(ranks)
			if err != nil {
				return nil, err
			}
			defer sub.Free()
			return AllGather(sub, c.Rank())
		})
		require.NoError(t, err)
		for _, res := range results {
			require.Equal(t, ranks, res)
		}
	})
}

func TestCreateSubgroupNotAMember(t *testing.T) {
	errs := rankErrors(t, Config{Size: 4, Topology: topology.Star}, func(c *Comm) error {
		sub, err := c.CreateSubgroup([]int{2, 1})
		if err != nil {
			return err
		}
		if sub.Valid() {
			x, err := Bcast(sub, sub.Rank()+7, 0)
			if err != nil {
				return err
			} else if x != 7 {
				t.Errorf("rank %d: broadcast got %d", c.Rank(), x)
			}
			return sub.Free()
		}
		if sub.ID() != uuid.Nil {
			t.Errorf("invalid communicator has ID %v", sub.ID())
		}
		if _, err := Bcast(sub, 1, 0); err != ErrNotAMember {
			t.Errorf("unexpected broadcast error: %v", err)
		}
		if err := sub.Send(1, 0, 0); err != ErrNotAMember {
			t.Errorf("unexpected send error: %v", err)
		}
		return sub.Free()
	})
	require.ErrorIs(t, errs[0], ErrNotAMember)
	require.NoError(t, errs[1])
	require.NoError(t, errs[2])
	require.ErrorIs(t, errs[3], ErrNotAMember)
}

func TestCreateSubgroupInvalid(t *testing.T) {
	w, err := Build(Config{Size: 3})
	require.NoError(t, err)
	defer w.Close()
	c := w.Comm(0)

	for _, ranks := range [][]int{nil, {0, 1, 0}, {0, 3}, {-1}} {
		_, err := c.CreateSubgroup(ranks)
		require.ErrorIs(t, err, ErrInvalidGroup, "ranks %v", ranks)
	}
}

func TestDup(t *testing.T) {
	w, err := Build(Config{Size: 3, Topology: topology.Tree})
	require.NoError(t, err)
	defer w.Close()

	dups := make([]*Comm, 3)
	var group errgroup.Group
	for rank := range dups {
		rank := rank
		group.Go(func() error {
			c := w.Comm(rank)
			dup, err := c.Dup()
			dups[rank] = dup
			if err != nil {
				return err
			}
			if rank == 0 {
				if err := dup.Send("dup", 2, 1); err != nil {
					return err
				}
				return c.Send("parent", 2, 1)
			} else if rank == 2 {
				msg, _, err := c.Recv(0, 1)
				if err != nil {
					return err
				} else if msg != "parent" {
					t.Errorf("parent received %v", msg)
				}
				msg, _, err = dup.Recv(0, 1)
				if err != nil {
					return err
				} else if msg != "dup" {
					t.Errorf("copy received %v", msg)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.Equal(t, 2, w.Generations())

	for rank, dup := range dups {
		require.Equal(t, rank, dup.Rank())
		require.Equal(t, 3, dup.Size())
		require.Equal(t, dups[0].ID(), dup.ID())
		require.NotEqual(t, w.Comm(0).ID(), dup.ID())
		require.NoError(t, dup.Free())
	}
	require.Equal(t, 1, w.Generations())
}
