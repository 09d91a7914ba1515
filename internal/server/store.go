package server

import (
	"context"
	"fmt"

	"csms/internal/boltstore"
	"csms/internal/config"
	"csms/internal/db"
	"csms/internal/repo"
	"csms/internal/store"
)

// OpenStore opens the configured backend and applies its schema.
func OpenStore(ctx context.Context, o *config.StoreOptions) (store.Store, error) {
	switch o.Driver {
	case config.DriverBolt:
		return boltstore.Open(o.BoltPath)
	case config.DriverPostgres:
		opts := db.DefaultPoolOptions()
		opts.MaxConns = o.MaxConns
		opts.MinConns = o.MinConns
		d, err := db.Connect(ctx, o.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		if err := d.Migrate(ctx); err != nil {
			d.Close()
			return nil, err
		}
		return repo.NewStore(d), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", o.Driver)
	}
}
