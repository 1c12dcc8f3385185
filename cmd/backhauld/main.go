// Command backhauld runs the backhaul daemon in the foreground. It is the
// systemd/container entrypoint; the CLI's hidden daemon subcommand wraps the
// same runtime for detached launches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"backhaul/internal/config"
	"backhaul/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
