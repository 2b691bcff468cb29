package config

import (
	"flag"
	"os"
	"time"

	"github.com/webauthnai/DogTagClient-sub000/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   managed container directory
//	-s string   local credential database path
//	-b string   disk-image utility binary
//	-m string   mount root prefix
//	-l int      max concurrent embedded-store opens
//	-t int      utility timeout in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-b", "-m", "-l", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.VaultDir, "d", cfg.VaultDir, "managed container directory")
	fs.StringVar(&cfg.LocalStorePath, "s", cfg.LocalStorePath, "local credential database path")
	fs.StringVar(&cfg.UtilBin, "b", cfg.UtilBin, "disk-image utility binary")
	fs.StringVar(&cfg.MountRoot, "m", cfg.MountRoot, "mount root prefix")
	fs.IntVar(&cfg.MaxStoreOps, "l", cfg.MaxStoreOps, "max concurrent store opens")
	utilTimeout := fs.Int("t", int(cfg.UtilTimeout.Seconds()), "utility timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.UtilTimeout = time.Duration(*utilTimeout) * time.Second
}
