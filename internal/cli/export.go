package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/webauthnai/DogTagClient-sub000/internal/shared"
)

func (a *App) export(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: export <container> <credentialID> [credentialID...]")
		return
	}

	id, err := a.resolveContainer(args[0])
	if err != nil {
		log.Println(err.Error())
		return
	}

	pass := a.askPassphrase()
	defer shared.WipeByteArray(pass)

	n, err := a.engine.Export(ctx, id, args[1:], pass)
	if err != nil {
		log.Println(err.Error())
		return
	}
	fmt.Printf("Exported %d of %d credential(s)\n", n, len(args)-1)
}
