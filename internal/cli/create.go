package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/webauthnai/DogTagClient-sub000/internal/shared"
)

const defaultContainerSizeMB = 10

func (a *App) create(ctx context.Context, args []string) {
	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		entered, err := GetSimpleText(a.reader, "Container name", os.Stdout)
		if err != nil || entered == "" {
			fmt.Println("Usage: create <name> [sizeMB]")
			return
		}
		name = entered
	}

	sizeMB := defaultContainerSizeMB
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			fmt.Println("Invalid size:", args[1])
			return
		}
		sizeMB = n
	}

	pass := a.askPassphrase()
	defer shared.WipeByteArray(pass)

	c, err := a.prov.Create(ctx, name, sizeMB, pass)
	if err != nil {
		log.Println(err.Error())
		return
	}
	fmt.Printf("Created container %s (%s, %dMB)\n", c.Name, c.ID, sizeMB)
}
