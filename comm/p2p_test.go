package comm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/unixpickle/mpcomm/topology"
)

func ExampleComm_Send() {
	results, err := RunCollect(Config{Size: 3, Topology: topology.Ring},
		func(c *Comm) (string, error) {
			next := (c.Rank() + 1) % c.Size()
			prev := (c.Rank() + c.Size() - 1) % c.Size()
			if c.Rank() == 0 {
				if err := c.Send("seed", next, 0); err != nil {
					return "", err
				}
			}
			msg, _, err := c.Recv(prev, 0)
			if err != nil {
				return "", err
			}
			if c.Rank() == 0 {
				return msg.(string), nil
			}
			return "", c.Send(fmt.Sprintf("%s->%d", msg, c.Rank()), next, 0)
		})
	if err != nil {
		panic(err)
	}
	fmt.Println(results[0])
	// Output: seed->1->2
}

func TestRingLap(t *testing.T) {
	forEachConfig(t, func(t *testing.T, config Config) {
		results, err := RunCollect(config, func(c *Comm) ([]int, error) {
			next := (c.Rank() + 1) % c.Size()
			prev := (c.Rank() + c.Size() - 1) % c.Size()
			if c.Rank() == 0 {
				if err := SendBuf(c, []int{0}, next, 7); err != nil {
					return nil, err
				}
			}
			msg, status, err := c.Recv(prev, 7)
			if err != nil {
				return nil, err
			}
			if status.Source != prev || status.Tag != 7 {
				return nil, fmt.Errorf("unexpected status %+v", status)
			}
			visited := msg.([]int)
			if c.Rank() == 0 {
				return visited, nil
			}
			return nil, c.Send(append(visited, c.Rank()), next, 7)
		})
		require.NoError(t, err)
		expected := []int{0}
		for i := 1; i < config.Size; i++ {
			expected = append(expected, i)
		}
		require.Equal(t, expected, results[0])
	})
}

func TestFIFOAnyTag(t *testing.T) {
	for _, kind := range topology.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			tags := []int{5, 3, 5, 1, 0, 3}
			results, err := RunCollect(Config{Size: 4, Topology: kind},
				func(c *Comm) ([]Status, error) {
					switch c.Rank() {
					case 2:
						for i, tag := range tags {
							if err := c.Send(i, 1, tag); err != nil {
								return nil, err
							}
						}
					case 1:
						var statuses []Status
						for i := range tags {
							msg, status, err := c.Recv(AnySource, AnyTag)
							if err != nil {
								return nil, err
							}
							if msg != i {
								return nil, fmt.Errorf("message %d: got %v", i, msg)
							}
							statuses = append(statuses, status)
						}
						return statuses, nil
					}
					return nil, nil
				})
			require.NoError(t, err)
			for i, status := range results[1] {
				require.Equal(t, Status{Source: 2, Tag: tags[i], Count: 1}, status)
			}
		})
	}
}

func TestRecvTagSelection(t *testing.T) {
	w, err := Build(Config{Size: 2})
	require.NoError(t, err)
	defer w.Close()
	c0, c1 := w.Comm(0), w.Comm(1)

	require.NoError(t, c0.Send("a", 1, 1))
	require.NoError(t, c0.Send("b", 1, 2))
	require.NoError(t, c0.Send("c", 1, 1))

	msg, _, err := c1.Recv(0, 2)
	require.NoError(t, err)
	require.Equal(t, "b", msg)
	for _, expected := range []string{"a", "c"} {
		msg, _, err := c1.Recv(0, 1)
		require.NoError(t, err)
		require.Equal(t, expected, msg)
	}
}

func TestSendToSelf(t *testing.T) {
	w, err := Build(Config{Size: 3, Topology: topology.Ring})
	require.NoError(t, err)
	defer w.Close()
	c := w.Comm(2)

	require.NoError(t, c.Send([]float64{1, 2, 3}, 2, 4))
	msg, status, err := c.Recv(2, 4)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, msg)
	require.Equal(t, Status{Source: 2, Tag: 4, Count: 3}, status)
}

func TestSendRecvExchange(t *testing.T) {
	forEachConfig(t, func(t *testing.T, config Config) {
		results, err := RunCollect(config, func(c *Comm) (int, error) {
			n := c.Size()
			msg, _, err := c.SendRecv(c.Rank()*10, (c.Rank()+1)%n, 0, (c.Rank()+n-1)%n, 0)
			if err != nil {
				return 0, err
			}
			return msg.(int), nil
		})
		require.NoError(t, err)
		for rank, x := range results {
			require.Equal(t, ((rank+config.Size-1)%config.Size)*10, x)
		}
	})
}

func TestRecvBufTooSmall(t *testing.T) {
	w, err := Build(Config{Size: 2, Topology: topology.Star})
	require.NoError(t, err)
	defer w.Close()
	c0, c1 := w.Comm(0), w.Comm(1)

	data := []int{1, 2, 3, 4}
	require.NoError(t, SendBuf(c0, data, 1, 3))
	data[0] = 100

	small := make([]int, 2)
	_, err = RecvBuf(c1, small, 0, 3)
	require.ErrorIs(t, err, ErrBufferTooSmall)
	var sizeErr *BufferTooSmallError
	require.True(t, errors.As(err, &sizeErr))
	require.Equal(t, 4, sizeErr.Need)
	require.Equal(t, 2, sizeErr.Have)

	big := make([]int, 8)
	status, err := RecvBuf(c1, big, 0, 3)
	require.NoError(t, err)
	require.Equal(t, Status{Source: 0, Tag: 3, Count: 4}, status)
	require.Equal(t, []int{1, 2, 3, 4}, big[:status.Count])
}

func TestRecvBufTypeMismatch(t *testing.T) {
	w, err := Build(Config{Size: 2})
	require.NoError(t, err)
	defer w.Close()
	c0, c1 := w.Comm(0), w.Comm(1)

	require.NoError(t, c0.Send([]int{1, 2}, 1, 0))
	_, err = RecvBuf(c1, make([]float64, 5), 0, 0)
	require.ErrorIs(t, err, ErrTypeMismatch)

	msg, _, err := c1.Recv(0, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, msg)
}

func TestInvalidArguments(t *testing.T) {
	w, err := Build(Config{Size: 2})
	require.NoError(t, err)
	defer w.Close()
	c := w.Comm(0)

	require.ErrorIs(t, c.Send(1, 0, -1), ErrInvalidTag)
	require.ErrorIs(t, c.Send(1, 2, 0), ErrRankOutOfRange)
	_, err = c.Irecv(-2, 0)
	require.ErrorIs(t, err, ErrRankOutOfRange)
	_, err = c.Irecv(AnySource, -5)
	require.ErrorIs(t, err, ErrInvalidTag)
	_, _, err = c.SendRecv(1, 0, -1, 1, 0)
	require.ErrorIs(t, err, ErrInvalidTag)
}

func TestIsendIrecvWindow(t *testing.T) {
	const window = 8
	forEachConfig(t, func(t *testing.T, config Config) {
		if config.Size < 2 {
			return
		}
		results, err := RunCollect(config, func(c *Comm) ([][]float64, error) {
			last := c.Size() - 1
			var reqs []*Request
			bufs := make([][]float64, window)
			for i := 0; i < window; i++ {
				var req *Request
				var err error
				switch c.Rank() {
				case 0:
					req, err = IsendBuf(c, []float64{float64(i), float64(i * i)}, last, i)
				case last:
					bufs[i] = make([]float64, 2)
					req, err = IrecvBuf(c, bufs[i], 0, i)
				default:
					continue
				}
				if err != nil {
					return nil, err
				}
				reqs = append(reqs, req)
			}
			if _, err := WaitAll(reqs...); err != nil {
				return nil, err
			}
			for _, req := range reqs {
				req.Free()
			}
			return bufs, nil
		})
		require.NoError(t, err)
		for i, buf := range results[config.Size-1] {
			require.Equal(t, []float64{float64(i), float64(i * i)}, buf)
		}
	})
}

func TestWaitAllAfterCompletion(t *testing.T) {
	w, err := Build(Config{Size: 3, Topology: topology.DuplexRing})
	require.NoError(t, err)
	defer w.Close()
	c0 := w.Comm(0)

	reqs := make([]*Request, 3)
	for i := range reqs {
		reqs[i], err = c0.Irecv(AnySource, i)
		require.NoError(t, err)
	}
	done := make(chan []Status, 1)
	go func() {
		statuses, _ := WaitAll(reqs...)
		done <- statuses
	}()

	require.NoError(t, w.Comm(1).Send("x", 0, 2))
	require.NoError(t, w.Comm(2).Send("y", 0, 0))
	select {
	case <-done:
		t.Fatal("WaitAll returned before every request completed")
	default:
	}
	require.NoError(t, w.Comm(2).Send("z", 0, 1))

	statuses := <-done
	require.Equal(t, []Status{
		{Source: 2, Tag: 0, Count: 1},
		{Source: 2, Tag: 1, Count: 1},
		{Source: 1, Tag: 2, Count: 1},
	}, statuses)
	require.Equal(t, "y", reqs[0].Data())
	require.Equal(t, "z", reqs[1].Data())
	require.Equal(t, "x", reqs[2].Data())
}

func TestWaitAny(t *testing.T) {
	w, err := Build(Config{Size: 2})
	require.NoError(t, err)
	defer w.Close()
	c0 := w.Comm(0)

	r0, err := c0.Irecv(1, 0)
	require.NoError(t, err)
	r1, err := c0.Irecv(1, 1)
	require.NoError(t, err)

	require.NoError(t, w.Comm(1).Send("second", 0, 1))
	idx, status, err := WaitAny(r0, r1)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, 1, status.Tag)

	done, _, _ := r0.Test()
	require.False(t, done)
	require.NoError(t, w.Comm(1).Send("first", 0, 0))
	_, err = r0.Wait()
	require.NoError(t, err)
	done, _, err = r0.Test()
	require.True(t, done)
	require.NoError(t, err)
}

func TestRequestFree(t *testing.T) {
	w, err := Build(Config{Size: 2})
	require.NoError(t, err)
	defer w.Close()
	c0 := w.Comm(0)

	req, err := c0.Irecv(1, 0)
	require.NoError(t, err)
	require.Panics(t, func() {
		req.Free()
	})

	require.NoError(t, w.Comm(1).Send(3, 0, 0))
	_, err = req.Wait()
	require.NoError(t, err)
	require.NotPanics(t, func() {
		req.Free()
		req.Free()
	})
}

func TestIsendCompletes(t *testing.T) {
	w, err := Build(Config{Size: 5, Topology: topology.Ring})
	require.NoError(t, err)
	defer w.Close()

	req, err := w.Comm(1).Isend("relayed", 0, 9)
	require.NoError(t, err)
	status, err := req.Wait()
	require.NoError(t, err)
	require.Equal(t, Status{Source: 1, Tag: 9, Count: 1}, status)

	msg, _, err := w.Comm(0).Recv(1, 9)
	require.NoError(t, err)
	require.Equal(t, "relayed", msg)
}

func TestUserTrafficIgnoresCollectives(t *testing.T) {
	results, err := RunCollect(Config{Size: 3}, func(c *Comm) (interface{}, error) {
		if c.Rank() == 0 {
			if err := c.Send("user", 1, 0); err != nil {
				return nil, err
			}
		}
		if _, err := Bcast(c, "collective", 0); err != nil {
			return nil, err
		}
		if c.Rank() == 1 {
			msg, _, err := c.Recv(AnySource, AnyTag)
			return msg, err
		}
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, "user", results[1])
}
