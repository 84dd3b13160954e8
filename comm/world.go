package comm

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// A World is a fixed set of workers wired together by a
// topology.
//
// The World keeps a registry of every communicator
// generation derived from it, so that Close can release
// all of their channels.
type World struct {
	config Config
	logger *slog.Logger
	root   *fabric

	lock    sync.Mutex
	fabrics map[uuid.UUID]*fabric
}

// Build creates the channels of a World and a router for
// every rank.
func Build(config Config) (*World, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		config:  config,
		logger:  config.logger(),
		fabrics: map[uuid.UUID]*fabric{},
	}
	root, err := w.newFabric(config.Size)
	if err != nil {
		return nil, err
	}
	w.root = root
	return w, nil
}

// Size returns the number of workers.
func (w *World) Size() int {
	return w.config.Size
}

// Comm returns the communicator of one worker.
//
// Each worker must use its own Comm and no other.
func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.root.size {
		panic("rank out of range")
	}
	return &Comm{world: w, fab: w.root, rank: rank}
}

// Generations returns the number of communicators with at
// least one rank that has not been freed.
func (w *World) Generations() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.fabrics)
}

// Close releases every channel of every communicator in
// the World.
//
// Close should only be called once every worker has
// stopped communicating.
func (w *World) Close() error {
	w.lock.Lock()
	fabrics := make([]*fabric, 0, len(w.fabrics))
	for _, f := range w.fabrics {
		fabrics = append(fabrics, f)
	}
	w.lock.Unlock()

	for _, f := range fabrics {
		f.close()
	}
	return nil
}

func (w *World) newFabric(size int) (*fabric, error) {
	f, err := newFabric(w.config.Topology, size, w.config.Algorithms, w.logger)
	if err != nil {
		return nil, err
	}
	w.lock.Lock()
	w.fabrics[f.id] = f
	w.lock.Unlock()
	f.onEnd = func() {
		w.lock.Lock()
		delete(w.fabrics, f.id)
		w.lock.Unlock()
		w.logger.Debug("released communicator", "comm", f.id.String())
	}
	return f, nil
}

// Run builds a World and calls f once per rank, each call
// in its own Goroutine.
//
// Run returns once every call has returned.
// Errors from individual ranks are not passed on to other
// ranks, so a failing rank may leave its peers blocked.
func Run(config Config, f func(c *Comm) error) error {
	_, err := RunCollect(config, func(c *Comm) (struct{}, error) {
		return struct{}{}, f(c)
	})
	return err
}

// RunCollect is like Run, but it gathers a result from
// every rank.
// The results are ordered by rank.
func RunCollect[R any](config Config, f func(c *Comm) (R, error)) ([]R, error) {
	w, err := Build(config)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	results := make([]R, config.Size)
	var group errgroup.Group
	for rank := 0; rank < config.Size; rank++ {
		rank := rank
		group.Go(func() error {
			res, err := f(w.Comm(rank))
			results[rank] = res
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			return nil
		})
	}
	return results, group.Wait()
}
