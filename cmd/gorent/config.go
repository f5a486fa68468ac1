package main

import (
	"flag"
	"fmt"
)

// config is the CLI's entire configuration surface, read once at startup.
// No config file is in scope (spec §1); flags are the only input.
type config struct {
	torrentPath string
	outputPath  string
	port        uint
	verbose     bool
}

func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("gorent", flag.ContinueOnError)
	cfg := config{}
	fs.StringVar(&cfg.torrentPath, "torrent", "", "path to a .torrent file (required)")
	fs.StringVar(&cfg.outputPath, "out", "", "output file path (defaults to the torrent's declared name)")
	fs.UintVar(&cfg.port, "port", 6881, "local port advertised to the tracker")
	fs.BoolVar(&cfg.verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.torrentPath == "" {
		return config{}, fmt.Errorf("gorent: -torrent is required")
	}
	return cfg, nil
}
