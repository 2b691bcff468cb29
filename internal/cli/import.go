package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/webauthnai/DogTagClient-sub000/internal/shared"
)

func (a *App) importCmd(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: import <container> [overwrite]")
		return
	}

	id, err := a.resolveContainer(args[0])
	if err != nil {
		log.Println(err.Error())
		return
	}

	overwrite := len(args) > 1 && args[1] == "overwrite"

	pass := a.askPassphrase()
	defer shared.WipeByteArray(pass)

	stats, err := a.engine.Import(ctx, id, pass, overwrite)
	if err != nil {
		log.Println(err.Error())
		return
	}
	fmt.Printf("Imported %d, duplicates %d, skipped %d\n",
		stats.Imported, stats.Duplicates, stats.Skipped)
}
