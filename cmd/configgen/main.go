package main

import (
	"flag"
	"log"

	"github.com/danmuck/edgeparams/internal/config"
	"github.com/danmuck/edgeparams/internal/paramstore"
)

func defaultPath(kind string) string {
	switch kind {
	case "node":
		return "cmd/paramnode/config.toml"
	case "router":
		return "cmd/paramrouter/config.toml"
	case "params":
		return "cmd/paramnode/params.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "node", "config kind: node|router|params")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "node":
			cfg, err := config.LoadNodeConfig(path)
			if err != nil {
				log.Fatal(err)
			}
			if cfg.ParamsFile != "" {
				if _, err := paramstore.LoadFile(cfg.ParamsFile); err != nil {
					log.Fatal(err)
				}
			}
		case "router":
			if _, err := config.LoadRouterConfig(path); err != nil {
				log.Fatal(err)
			}
		case "params":
			decls, err := paramstore.LoadFile(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("%d parameters declared", len(decls))
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
