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
	configPath := flag.String("config", "cmd/paramnode/config.toml", "node config path")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("paramnode")
	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paramnode: %v\n", err)
		os.Exit(1)
	}
	if err := daemon.NewNodeService(cfg, nil).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "paramnode: %v\n", err)
		os.Exit(1)
	}
}
