// Command rtspbench drives a configurable number of concurrent RTSP
// session channels against a server and reports connect latency and
// RTP delivery statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wavecrest-video/rtspchannel/internal/bench"
)

var (
	flagURL           = flag.StringP("url", "u", "", "RTSP URL to connect to (required)")
	flagUsername      = flag.String("username", "", "username for Basic/Digest authentication")
	flagPassword      = flag.String("password", "", "password for Basic/Digest authentication")
	flagReaders       = flag.IntP("readers", "n", 1, "number of concurrent readers")
	flagDuration      = flag.DurationP("duration", "d", 30*time.Second, "how long each reader stays connected")
	flagRate          = flag.Float64P("rate", "r", 10, "target connections per second")
	flagStatsInterval = flag.Duration("stats-interval", 2*time.Second, "how often to print a stats line")
	flagReorderWindow = flag.Int("reorder-window", 32, "RTP reorder window per reader")
	flagLogLevel      = flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	flagHelp          = flag.BoolP("help", "h", false, "print usage and exit")
)

func main() {
	flag.Parse()

	if *flagHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *flagURL == "" {
		fmt.Fprintln(os.Stderr, "rtspbench: --url is required")
		flag.Usage()
		os.Exit(2)
	}

	level, err := zerolog.ParseLevel(*flagLogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutting down")
		cancel()
	}()

	config := bench.Config{
		URL:           *flagURL,
		Username:      *flagUsername,
		Password:      *flagPassword,
		Readers:       *flagReaders,
		Duration:      *flagDuration,
		Rate:          *flagRate,
		StatsInterval: *flagStatsInterval,
		ReorderWindow: *flagReorderWindow,
	}

	agg := bench.NewAggregator()
	runner := bench.NewRunner(config, agg)

	bold := color.New(color.Bold)
	bold.Printf("rtspbench: %d readers, %.1f/s, %s duration, target %s\n",
		config.Readers, config.Rate, config.Duration, config.URL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		printStats(ctx, runner, config.StatsInterval)
	}()

	runCtx, runCancel := context.WithTimeout(ctx, config.Duration+30*time.Second)
	defer runCancel()
	_ = runner.Run(runCtx)
	cancel()
	<-done

	printSummary(runner)
}

func printStats(ctx context.Context, runner *bench.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := runner.GetStats()
			lossRate := float64(0)
			total := s.RTPPackets + s.RTPLoss
			if total > 0 {
				lossRate = float64(s.RTPLoss) * 100.0 / float64(total)
			}
			line := fmt.Sprintf("active=%d total=%d failed=%d avg_connect=%.1fms packets=%d loss=%.2f%%",
				s.ActiveConnects, s.TotalConnects, s.TotalFailures, s.AvgConnectTime, s.RTPPackets, lossRate)
			if s.TotalFailures > 0 {
				red.Println(line)
			} else {
				green.Println(line)
			}
		}
	}
}

func printSummary(runner *bench.Runner) {
	s := runner.GetStats()
	lossRate := float64(0)
	total := s.RTPPackets + s.RTPLoss
	if total > 0 {
		lossRate = float64(s.RTPLoss) * 100.0 / float64(total)
	}

	bold := color.New(color.Bold)
	bold.Println("\n--- summary ---")
	fmt.Printf("connects:      %d (failed %d)\n", s.TotalConnects, s.TotalFailures)
	fmt.Printf("connect time:  avg=%.1fms min=%.1fms max=%.1fms p95=%.1fms\n",
		s.AvgConnectTime, s.MinConnectTime, s.MaxConnectTime, s.P95ConnectTime)
	fmt.Printf("rtp:           packets=%d lost=%d bytes=%d loss=%.2f%%\n",
		s.RTPPackets, s.RTPLoss, s.RTPBytes, lossRate)
}
