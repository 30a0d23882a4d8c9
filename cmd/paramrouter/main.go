package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/edgeparams/internal/config"
	"github.com/danmuck/edgeparams/internal/daemon"
	"github.com/danmuck/edgeparams/internal/logging"
	"github.com/danmuck/edgeparams/internal/observability"
)

func main() {
	configPath := flag.String("config", "cmd/paramrouter/config.toml", "router config path")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("paramrouter")
	cfg, err := config.LoadRouterConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paramrouter: %v\n", err)
		os.Exit(1)
	}
	if err := daemon.NewRouterService(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "paramrouter: %v\n", err)
		os.Exit(1)
	}
}
