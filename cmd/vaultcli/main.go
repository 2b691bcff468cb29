package main

import (
	"context"
	"log"
	"os"

	"github.com/webauthnai/DogTagClient-sub000/internal/buildinfo"
	"github.com/webauthnai/DogTagClient-sub000/internal/cli"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
