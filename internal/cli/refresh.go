package cli

import (
	"context"
	"fmt"
	"log"
)

// refresh bypasses the count staleness window for one container and reports
// the recomputed value.
func (a *App) refresh(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: refresh <container>")
		return
	}

	id, err := a.resolveContainer(args[0])
	if err != nil {
		log.Println(err.Error())
		return
	}

	a.cache.Invalidate(ctx, id)

	containers, err := a.prov.List(ctx)
	if err != nil {
		log.Println(err.Error())
		return
	}
	for _, c := range containers {
		if c.ID == id {
			fmt.Printf("%s: credentials=%d\n", c.Name, c.CredentialCount)
			return
		}
	}
}
