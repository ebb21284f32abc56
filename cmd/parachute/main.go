// Command parachute runs the mount simulator against an in-memory host. It
// replays a scripted match through the same command bridge a game server
// plugin would use, records every flight and prints the host replies.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/host/memhost"
	"github.com/spf13/pflag"
)

var (
	version   = "0.1.0"
	buildDate = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("parachute", pflag.ExitOnError)
	configDir := flags.StringP("config", "c", ".", "directory containing "+config.ConfigFileName)
	opts := demoOptions{}
	flags.IntVarP(&opts.Players, "players", "p", 6, "number of scripted players")
	flags.IntVar(&opts.Rounds, "rounds", 2, "rounds to play")
	flags.IntVar(&opts.TickRate, "tickrate", 64, "simulation ticks per second")
	flags.DurationVar(&opts.RoundLength, "round-length", 20*time.Second, "game time per round")
	flags.StringVar(&opts.MapName, "map", "de_dust2", "map to load")
	flags.BoolVar(&opts.Realtime, "realtime", false, "sleep between ticks instead of running as fast as possible")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "print every host command and reply")
	showVersion := flags.Bool("version", false, "print the version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("parachute %s (%s)\n", version, buildDate)
		return
	}

	a, err := newApp(*configDir, memhost.New(), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	runErr := runDemo(a, opts, os.Stdout)
	closeErr := a.close()
	if runErr != nil || closeErr != nil {
		fmt.Fprintf(os.Stderr, "run: %v, shutdown: %v\n", runErr, closeErr)
		os.Exit(1)
	}
}
