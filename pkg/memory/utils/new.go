// Package memoryutils constructs record stores from provider config.
package memoryutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/memory/inmemory"
	"github.com/engramhq/engram/pkg/memory/postgres"
	"github.com/engramhq/engram/pkg/memory/sqlite"
)

type NewStoreOpts struct {
	ProviderType string
	Path         string
	ConnString   string
	Logger       *zap.Logger
}

func NewStore(ctx context.Context, o *NewStoreOpts) (memory.Store, error) {
	switch o.ProviderType {
	case "memory":
		return inmemory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(sqlite.Config{
			Path:   o.Path,
			Driver: "sqlite3",
		}, o.Logger)
	case "libsql":
		return sqlite.NewStore(sqlite.Config{
			Path:   o.Path,
			Driver: "libsql",
		}, o.Logger)
	case "postgres":
		return postgres.NewStore(ctx, o.ConnString, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
