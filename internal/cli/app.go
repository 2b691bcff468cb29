// Package cli implements the operator REPL for managing credential
// containers: creating, listing, exporting, importing, comparing and
// inspecting.
package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/webauthnai/DogTagClient-sub000/internal/logging"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/cache"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/config"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/diskimage"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/limiter"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/provisioner"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/store"
	"github.com/webauthnai/DogTagClient-sub000/internal/vault/transfer"
)

// App wires the vault services together and drives the REPL. All services
// are constructed here and passed by reference; there is no global state.
type App struct {
	config *config.Config
	prov   *provisioner.Provisioner
	engine *transfer.Engine
	cache  *cache.Cache
	local  store.CredentialStore
	log    logging.Logger
	reader *bufio.Reader
}

// NewApp builds the full service graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewDefault(os.Stderr, slog.LevelWarn)

	if err := os.MkdirAll(cfg.VaultDir, 0o755); err != nil {
		return nil, err
	}

	util := diskimage.NewCLIUtil(cfg.UtilBin, cfg.MountRoot, cfg.UtilTimeout, logger)
	metaCache := cache.New(cfg.VaultDir, logger)
	gate := limiter.New(cfg.MaxStoreOps)

	prov, err := provisioner.New(cfg.VaultDir, util, metaCache, gate, provisioner.Options{
		ContainerExt: cfg.ContainerExt,
		CountMaxAge:  cfg.CacheMaxAge,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	local, err := store.Open(ctx, cfg.LocalStorePath)
	if err != nil {
		log.Printf("error initializing local store: %s", err.Error())
		return nil, err
	}

	engine := transfer.New(local, prov, metaCache, logger)

	return &App{
		config: cfg,
		prov:   prov,
		engine: engine,
		cache:  metaCache,
		local:  local,
		log:    logger,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

// Run mounts every passphrase-free container and enters the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.local.Close()
	a.prov.MountAll(ctx)
	a.Root(ctx)
}

// resolveContainer accepts either a container identifier or a display name.
func (a *App) resolveContainer(ref string) (string, error) {
	if _, err := a.prov.ResolvePath(ref); err == nil {
		return ref, nil
	}
	id := provisioner.IdentifierFromPath(a.prov.ContainerPath(ref))
	if _, err := a.prov.ResolvePath(id); err != nil {
		return "", err
	}
	return id, nil
}
