package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Root runs the interactive loop: one command per line, first token
// dispatched, the rest passed as arguments. Handler errors are printed, not
// propagated; the loop itself only ends on EOF or an explicit exit.
func (a *App) Root(ctx context.Context) {

	fmt.Println("Vault CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("vault> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: create, list, export, import, compare, inspect, refresh, delete, exit")

		case "create":
			a.create(ctx, args)
		case "l", "list":
			a.list(ctx)
		case "export":
			a.export(ctx, args)
		case "import":
			a.importCmd(ctx, args)
		case "compare":
			a.compare(ctx, args)
		case "inspect":
			a.inspect(ctx, args)
		case "refresh":
			a.refresh(ctx, args)
		case "delete":
			a.delete(ctx, args)
		case "exit", "quit":
			fmt.Println("Bye!")
			return

		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
