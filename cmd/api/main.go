package main

import (
	"log"

	"cais-backend/internal/bootstrap"
	"cais-backend/internal/shared/config"
	"cais-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	addr := server.Addr(cfg.Port)
	log.Printf("listening on %s (env=%s store=%s)", addr, cfg.Env, cfg.ObjectStoreType)
	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
