// Package app assembles Mahuta from settings: the content store and its
// read pool and cache, the index backend, the pinning replicas, the
// service and the asynchronous pinning scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/config/file"
	esindex "github.com/custodia-labs/mahuta/internal/adapters/driven/index/elasticsearch"
	memindex "github.com/custodia-labs/mahuta/internal/adapters/driven/index/memory"
	sqlindex "github.com/custodia-labs/mahuta/internal/adapters/driven/index/sqlite"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/pinning/cluster"
	mempin "github.com/custodia-labs/mahuta/internal/adapters/driven/pinning/memory"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/pinning/pinata"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/datastore"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/ipfs"
	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/pebble"
	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/core/services"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// App holds the assembled components.
type App struct {
	Settings  domain.Settings
	Config    *file.ConfigStore
	Store     driven.StorageBackend
	Index     driven.IndexBackend
	Replicas  *services.ReplicaSet
	Mahuta    *services.Mahuta
	Scheduler *services.PinningScheduler
}

// Load reads settings from configDir (or the default directory) and builds
// the application.
func Load(ctx context.Context, configDir string) (*App, error) {
	config, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settings, err := config.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings from %s: %w", config.Path(), err)
	}
	a, err := Build(ctx, settings)
	if err != nil {
		return nil, err
	}
	a.Config = config
	return a, nil
}

// Build assembles the application from settings. On error, whatever was
// opened is closed again.
func Build(ctx context.Context, settings domain.Settings) (a *App, err error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	a = &App{Settings: settings}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	logger.Section("Startup")

	store, err := openStore(settings)
	if err != nil {
		return a, err
	}
	bounded := services.NewBoundedStorage(store, services.BoundedStorageConfig{
		PoolSize:        settings.Storage.PoolSize,
		ReadTimeout:     settings.Storage.ReadTimeout.Std(),
		WriteRetries:    settings.Storage.WriteRetries,
		WriteRetryDelay: settings.Storage.WriteRetryDelay.Std(),
	})
	a.Store = bounded
	if settings.Cache.Size > 0 {
		cached, err := services.NewCachingStorage(bounded, settings.Cache.Size)
		if err != nil {
			return a, err
		}
		a.Store = cached
	}
	logger.Debug("Storage: %s (pool %d, cache %d)", store.Name(), settings.Storage.PoolSize, settings.Cache.Size)

	a.Index, err = openIndex(settings)
	if err != nil {
		return a, err
	}
	logger.Debug("Index: %s", settings.Index.Type)

	replicas, err := openReplicas(settings.Replicas)
	if err != nil {
		return a, err
	}
	a.Replicas = services.NewReplicaSet(replicas...)

	a.Mahuta = services.NewMahuta(a.Store, a.Index, a.Replicas,
		services.WithAsyncPinning(settings.Pinning.Async))

	if settings.Pinning.Async {
		a.Scheduler = services.NewPinningScheduler(services.PinningSchedulerConfig{
			Interval:    settings.Pinning.Interval.Std(),
			PageSize:    settings.Pinning.PageSize,
			MaxAttempts: settings.Pinning.MaxAttempts,
		}, a.Store, a.Index, a.Replicas)
	}

	for _, def := range settings.Index.Indexes {
		if err := createIndex(ctx, a.Mahuta, def); err != nil {
			return a, err
		}
	}
	return a, nil
}

// Close releases the index and the store.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func openStore(settings domain.Settings) (driven.StorageBackend, error) {
	s := settings.Storage
	switch s.Type {
	case domain.StorageDatastore:
		return datastore.NewStore(nil), nil

	case domain.StorageIPFS:
		return ipfs.NewStore(s.IPFSURL)

	case domain.StoragePebble:
		dir := s.PebbleDir
		if dir == "" {
			dir = filepath.Join(settings.DataDir, "content")
		}
		store, err := pebble.NewStore(dir)
		if err != nil {
			return nil, err
		}
		if err := metrics.Register(pebble.NewCollector(store.DB())); err != nil {
			logger.Warn("pebble metrics not registered: %v", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: storage type %q", domain.ErrInvalidArgument, s.Type)
}

func openIndex(settings domain.Settings) (driven.IndexBackend, error) {
	s := settings.Index
	switch s.Type {
	case domain.IndexMemory:
		return memindex.NewIndex(memindex.Config{
			IndexNull:    s.IndexNullValues,
			SnapshotPath: s.SnapshotPath,
		})

	case domain.IndexSQLite:
		path := s.SQLitePath
		if path == "" {
			path = filepath.Join(settings.DataDir, "index.db")
		}
		return sqlindex.NewIndex(path, s.IndexNullValues)

	case domain.IndexElasticsearch:
		return esindex.NewIndex(esindex.Config{
			URLs:      s.URLs,
			Username:  s.Username,
			Password:  s.Password,
			IndexNull: s.IndexNullValues,
		})
	}
	return nil, fmt.Errorf("%w: index type %q", domain.ErrInvalidArgument, s.Type)
}

func openReplicas(settings []domain.ReplicaSettings) ([]driven.PinningReplica, error) {
	replicas := make([]driven.PinningReplica, 0, len(settings))
	for _, r := range settings {
		switch r.Type {
		case domain.ReplicaMemory:
			replicas = append(replicas, mempin.NewReplica(r.Name))

		case domain.ReplicaCluster:
			replicas = append(replicas, cluster.NewReplica(cluster.Config{
				Name:     r.Name,
				Endpoint: r.Endpoint,
				Timeout:  r.Timeout.Std(),
			}))

		case domain.ReplicaPinata:
			replica, err := pinata.NewReplica(pinata.Config{
				Name:              r.Name,
				Endpoint:          r.Endpoint,
				APIKey:            r.APIKey,
				SecretKey:         r.SecretKey,
				Timeout:           r.Timeout.Std(),
				RequestsPerSecond: r.RequestsPerSecond,
				Burst:             r.Burst,
			})
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, replica)

		default:
			return nil, fmt.Errorf("%w: replica type %q", domain.ErrInvalidArgument, r.Type)
		}
		logger.Debug("Replica: %s", replicas[len(replicas)-1].Name())
	}
	return replicas, nil
}

func createIndex(ctx context.Context, mahuta *services.Mahuta, def domain.IndexDefinition) error {
	var mapping []byte
	if def.MappingFile != "" {
		data, err := os.ReadFile(def.MappingFile)
		if err != nil {
			return fmt.Errorf("%w: mapping for %s: %v", domain.ErrInvalidArgument, def.Name, err)
		}
		mapping = data
	}
	if err := mahuta.CreateIndex(ctx, def.Name, mapping); err != nil {
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}
