package cmd

import (
	"log"
	"os"
)

func init() {
	// Configure the standard logger, which underlies the logging package, to
	// write to standard error with timestamps.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
}
