package main

import (
	"github.com/chgenberg/bolaxo-sub002/internal/app"
	"github.com/chgenberg/bolaxo-sub002/internal/app/config"
)

func main() {
	cfg := config.MustLoad()
	app.Run(cfg)
}
