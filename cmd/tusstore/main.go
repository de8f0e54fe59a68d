package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/app"
	"github.com/dmitrijs2005/tusstore/internal/config"
	"github.com/dmitrijs2005/tusstore/internal/flagx"
)

func main() {

	args := os.Args[1:]
	global, _, _ := flagx.SplitCommand(args, app.CommandNames())

	cfg, err := config.LoadConfig(global)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	a, err := app.NewApp(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = a.Run(ctx, args)
	if cerr := a.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}
	if err != nil {
		if errors.Is(err, app.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
