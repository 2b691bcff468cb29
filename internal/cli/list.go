package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) list(ctx context.Context) {
	containers, err := a.prov.List(ctx)
	if err != nil {
		log.Println(err.Error())
		return
	}
	if len(containers) == 0 {
		fmt.Println("No containers")
		return
	}

	for _, c := range containers {
		state := "unlocked"
		if c.IsLocked {
			state = "locked"
		}
		accessed := "never"
		if !c.LastAccessedAt.IsZero() {
			accessed = c.LastAccessedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-20s %s  %-8s credentials=%d  accessed=%s\n",
			c.Name, c.ID, state, c.CredentialCount, accessed)
	}
}
