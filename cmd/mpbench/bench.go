package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/mpcomm/comm"
	"github.com/unixpickle/mpcomm/topology"
	"gonum.org/v1/gonum/stat"
)

// PingPong times round trips between the first and last
// ranks for every message size.
func PingPong(b *BenchConfig) (pterm.TableData, error) {
	table := pterm.TableData{{"Bytes", "Round trip (µs)", "Std (µs)", "Bandwidth (MB/s)"}}
	for power := b.MinPower; power <= b.MaxPower; power++ {
		numFloats := essentials.MaxInt(1, (1<<power)/8)
		times, err := rootTimings(b.CommConfig(b.Topology), func(c *comm.Comm) ([]float64, error) {
			last := c.Size() - 1
			buf := make([]float64, numFloats)
			var times []float64
			for i := 0; i < b.Repetitions; i++ {
				start := time.Now()
				switch c.Rank() {
				case 0:
					if err := comm.SendBuf(c, buf, last, 0); err != nil {
						return nil, err
					}
					if _, err := comm.RecvBuf(c, buf, last, 0); err != nil {
						return nil, err
					}
				case last:
					if _, err := comm.RecvBuf(c, buf, 0, 0); err != nil {
						return nil, err
					}
					if err := comm.SendBuf(c, buf, 0, 0); err != nil {
						return nil, err
					}
				}
				times = append(times, time.Since(start).Seconds())
			}
			return times, nil
		})
		if err != nil {
			return nil, err
		}
		mean, std := summarize(times)
		bytes := numFloats * 8
		table = append(table, []string{
			strconv.Itoa(bytes),
			mean,
			std,
			formatRate(2*float64(bytes), stat.Mean(times, nil)),
		})
	}
	return table, nil
}

// Window times bursts of non-blocking sends of the largest
// message size, for every window size.
func Window(b *BenchConfig) (pterm.TableData, error) {
	table := pterm.TableData{{"Window", "Bytes", "Burst (µs)", "Std (µs)", "Bandwidth (MB/s)"}}
	numFloats := essentials.MaxInt(1, (1<<b.MaxPower)/8)
	for _, window := range b.Windows {
		times, err := rootTimings(b.CommConfig(b.Topology), func(c *comm.Comm) ([]float64, error) {
			last := c.Size() - 1
			bufs := make([][]float64, window)
			for i := range bufs {
				bufs[i] = make([]float64, numFloats)
			}
			var times []float64
			for i := 0; i < b.Repetitions; i++ {
				start := time.Now()
				if err := burst(c, bufs, last); err != nil {
					return nil, err
				}
				times = append(times, time.Since(start).Seconds())
			}
			return times, nil
		})
		if err != nil {
			return nil, err
		}
		mean, std := summarize(times)
		bytes := window * numFloats * 8
		table = append(table, []string{
			strconv.Itoa(window),
			strconv.Itoa(bytes),
			mean,
			std,
			formatRate(float64(bytes), stat.Mean(times, nil)),
		})
	}
	return table, nil
}

func burst(c *comm.Comm, bufs [][]float64, last int) error {
	var reqs []*comm.Request
	for tag, buf := range bufs {
		var req *comm.Request
		var err error
		switch c.Rank() {
		case 0:
			req, err = comm.IsendBuf(c, buf, last, tag)
		case last:
			req, err = comm.IrecvBuf(c, buf, 0, tag)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}
	if _, err := comm.WaitAll(reqs...); err != nil {
		return err
	}
	for _, req := range reqs {
		req.Free()
	}

	// The receiver acknowledges the burst, so the sender
	// times the full transfer.
	if c.Rank() == 0 {
		_, _, err := c.Recv(last, len(bufs))
		return err
	}
	return c.Send(nil, 0, len(bufs))
}

// Collectives times every collective on every topology.
func Collectives(b *BenchConfig) (pterm.TableData, error) {
	names := []string{"Barrier", "Bcast", "Reduce", "AllReduce", "AllGather", "AllToAll"}
	header := append([]string{"Topology"}, names...)
	for i := range names {
		header[i+1] += " (µs)"
	}
	table := pterm.TableData{header}

	numFloats := essentials.MaxInt(1, (1<<b.MaxPower)/8)
	for _, kind := range topology.Kinds() {
		ops := []func(c *comm.Comm, vec []float64) error{
			func(c *comm.Comm, vec []float64) error {
				return c.Barrier()
			},
			func(c *comm.Comm, vec []float64) error {
				_, err := comm.Bcast(c, vec, 0)
				return err
			},
			func(c *comm.Comm, vec []float64) error {
				_, err := comm.Reduce(c, vec, comm.VecSum(), 0)
				return err
			},
			func(c *comm.Comm, vec []float64) error {
				_, err := comm.AllReduce(c, vec, comm.VecSum())
				return err
			},
			func(c *comm.Comm, vec []float64) error {
				_, err := comm.AllGather(c, vec[0])
				return err
			},
			func(c *comm.Comm, vec []float64) error {
				_, err := comm.AllToAll(c, make([]float64, c.Size()))
				return err
			},
		}
		row := []string{kind.String()}
		for i, op := range ops {
			times, err := rootTimings(b.CommConfig(kind), func(c *comm.Comm) ([]float64, error) {
				vec := make([]float64, numFloats)
				var times []float64
				for j := 0; j < b.Repetitions; j++ {
					if err := c.Barrier(); err != nil {
						return nil, err
					}
					start := time.Now()
					if err := op(c, vec); err != nil {
						return nil, err
					}
					times = append(times, time.Since(start).Seconds())
				}
				return times, nil
			})
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", names[i], kind, err)
			}
			mean, _ := summarize(times)
			row = append(row, mean)
		}
		table = append(table, row)
	}
	return table, nil
}

// Layouts times ping-pongs of the x and z components of
// [x, y, z] rows, once packed by hand and once through
// Layouts.
func Layouts(b *BenchConfig) (pterm.TableData, error) {
	cases := []struct {
		name   string
		layout comm.Layout
	}{
		{"copy (x,z)", comm.Contiguous(2)},
		{"indexed (x,z)", comm.Indexed([]int{1, 1}, []int{0, 2}).Resized(3)},
		{"resized (x,y)", comm.Contiguous(2).Resized(3)},
	}
	header := []string{"Bytes"}
	for _, c := range cases {
		header = append(header, c.name+" (MB/s)")
	}
	table := pterm.TableData{header}

	for power := b.MinPower; power <= b.MaxPower; power++ {
		rows := essentials.MaxInt(1, (1<<power)/16)
		row := []string{strconv.Itoa(rows * 16)}
		for i, layoutCase := range cases {
			copyFirst := i == 0
			layout := layoutCase.layout
			times, err := rootTimings(b.CommConfig(b.Topology), func(c *comm.Comm) ([]float64, error) {
				xyz := make([]float64, rows*3)
				var times []float64
				for j := 0; j < b.Repetitions; j++ {
					start := time.Now()
					if err := layoutPingPong(c, xyz, rows, layout, copyFirst); err != nil {
						return nil, err
					}
					times = append(times, time.Since(start).Seconds())
				}
				return times, nil
			})
			if err != nil {
				return nil, fmt.Errorf("%s: %w", layoutCase.name, err)
			}
			row = append(row, formatRate(2*float64(rows*16), stat.Mean(times, nil)))
		}
		table = append(table, row)
	}
	return table, nil
}

func layoutPingPong(c *comm.Comm, xyz []float64, rows int, layout comm.Layout,
	copyFirst bool) error {
	last := c.Size() - 1
	var peer int
	switch c.Rank() {
	case 0:
		peer = last
	case last:
		peer = 0
	default:
		return nil
	}
	send := func() error {
		if !copyFirst {
			return comm.SendLayout(c, xyz, layout, rows, peer, 0)
		}
		packed := make([]float64, 0, rows*2)
		for i := 0; i < rows; i++ {
			packed = append(packed, xyz[i*3], xyz[i*3+2])
		}
		return c.Send(packed, peer, 0)
	}
	recv := func() error {
		if !copyFirst {
			_, err := comm.RecvLayout(c, xyz, layout, rows, peer, 0)
			return err
		}
		packed := make([]float64, rows*2)
		if _, err := comm.RecvBuf(c, packed, peer, 0); err != nil {
			return err
		}
		for i := 0; i < rows; i++ {
			xyz[i*3], xyz[i*3+2] = packed[i*2], packed[i*2+1]
		}
		return nil
	}
	if c.Rank() == 0 {
		if err := send(); err != nil {
			return err
		}
		return recv()
	}
	if err := recv(); err != nil {
		return err
	}
	return send()
}

// rootTimings runs f on every rank and returns the timings
// of rank 0.
func rootTimings(config comm.Config, f func(c *comm.Comm) ([]float64, error)) ([]float64, error) {
	results, err := comm.RunCollect(config, f)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func formatRate(bytes, seconds float64) string {
	if seconds == 0 {
		return "-"
	}
	return strconv.FormatFloat(bytes/seconds/1e6, 'f', 2, 64)
}
