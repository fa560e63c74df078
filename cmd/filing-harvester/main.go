package main

import "os"

// Version metadata, set via -ldflags at build time.
var (
	Version = "dev"
	GitSHA  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
