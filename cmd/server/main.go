package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/sealchat/internal/server"
	"github.com/dmitrijs2005/sealchat/internal/server/config"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == genKeyCommand {
		if err := writeEncryptionKey(os.Stdout); err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
