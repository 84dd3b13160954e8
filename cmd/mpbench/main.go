// Command mpbench measures the throughput of point-to-point
// messages and the latency of collectives.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/stat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var bench func(b *BenchConfig) (pterm.TableData, error)
	switch os.Args[1] {
	case "pingpong":
		bench = PingPong
	case "window":
		bench = Window
	case "collectives":
		bench = Collectives
	case "layout":
		bench = Layouts
	default:
		usage()
	}

	config, err := LoadBenchConfig(os.Args[1], os.Args[2:])
	if err != nil {
		essentials.Die(err)
	}
	pterm.DefaultSection.Printfln("%s: %d workers, %d repetitions", os.Args[1], config.Workers,
		config.Repetitions)
	table, err := bench(config)
	if err != nil {
		essentials.Die(essentials.AddCtx(os.Args[1], err))
	}
	essentials.Must(pterm.DefaultTable.WithHasHeader().WithData(table).Render())
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mpbench <pingpong | window | collectives | layout> [flags]")
	os.Exit(1)
}

func benchLogger(verbose bool) *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithLevel(pterm.LogLevelDebug)))
}

// summarize formats the mean and standard deviation of
// some timings, in microseconds.
func summarize(seconds []float64) (mean, std string) {
	m, s := stat.MeanStdDev(seconds, nil)
	if len(seconds) < 2 {
		s = 0
	}
	return formatMicros(m), formatMicros(s)
}

func formatMicros(seconds float64) string {
	return strconv.FormatFloat(seconds*1e6, 'f', 1, 64)
}
