package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/webauthnai/DogTagClient-sub000/internal/vault/diagnostics"
)

// inspect renders the attestation object a relying party would have
// received for a locally stored credential.
func (a *App) inspect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: inspect <credentialID>")
		return
	}
	credID := args[0]

	clients, servers, err := a.engine.LocalRecords(ctx)
	if err != nil {
		log.Println(err.Error())
		return
	}

	modelID := uuid.Nil
	for _, s := range servers {
		if s.ID == credID {
			if parsed, err := uuid.Parse(s.ModelID); err == nil {
				modelID = parsed
			}
			break
		}
	}

	for _, c := range clients {
		if c.ID != credID {
			continue
		}
		raw, err := diagnostics.AttestationPayload(&c, modelID)
		if err != nil {
			log.Println(err.Error())
			return
		}
		desc, err := diagnostics.DescribeAttestation(raw)
		if err != nil {
			log.Println(err.Error())
			return
		}
		fmt.Print(desc)
		return
	}
	fmt.Println("Unknown credential:", credID)
}
