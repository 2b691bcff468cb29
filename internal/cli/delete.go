package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) delete(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: delete <container>")
		return
	}

	id, err := a.resolveContainer(args[0])
	if err != nil {
		log.Println(err.Error())
		return
	}

	if err := a.prov.Delete(ctx, id); err != nil {
		log.Println(err.Error())
		return
	}
	fmt.Println("Deleted", args[0])
}
