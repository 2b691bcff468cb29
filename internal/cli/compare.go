package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/webauthnai/DogTagClient-sub000/internal/shared"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/diagnostics"
)

func (a *App) compare(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: compare <container>")
		return
	}

	id, err := a.resolveContainer(args[0])
	if err != nil {
		log.Println(err.Error())
		return
	}

	pass := a.askPassphrase()
	defer shared.WipeByteArray(pass)

	localClients, localServers, err := a.engine.LocalRecords(ctx)
	if err != nil {
		log.Println(err.Error())
		return
	}
	containerClients, containerServers, err := a.engine.ReadContainer(ctx, id, pass)
	if err != nil {
		log.Println(err.Error())
		return
	}

	r := diagnostics.Compare(localClients, containerClients, localServers, containerServers)
	fmt.Println("Client credentials:")
	printDiff(r.Client)
	fmt.Println("Server credentials:")
	printDiff(r.Server)
}

func printDiff(d diagnostics.Diff) {
	fmt.Printf("  in both:        %s\n", idList(d.Duplicates))
	fmt.Printf("  local only:     %s\n", idList(d.LocalOnly))
	fmt.Printf("  container only: %s\n", idList(d.ContainerOnly))
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
