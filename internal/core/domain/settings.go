package domain

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as text ("5s") in
// configuration files.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidArgument, text, err)
	}
	*d = Duration(parsed)
	return nil
}

// StorageType selects the content store.
type StorageType string

// Available content stores.
const (
	// StoragePebble keeps content in a local pebble database.
	StoragePebble StorageType = "pebble"

	// StorageDatastore keeps content in an in-memory IPFS datastore.
	StorageDatastore StorageType = "datastore"

	// StorageIPFS talks to an IPFS node over its HTTP API.
	StorageIPFS StorageType = "ipfs"
)

// IsValid returns true if the storage type is recognised.
func (t StorageType) IsValid() bool {
	switch t {
	case StoragePebble, StorageDatastore, StorageIPFS:
		return true
	default:
		return false
	}
}

// IndexType selects the search index.
type IndexType string

// Available search indexes.
const (
	IndexSQLite        IndexType = "sqlite"
	IndexMemory        IndexType = "memory"
	IndexElasticsearch IndexType = "elasticsearch"
)

// IsValid returns true if the index type is recognised.
func (t IndexType) IsValid() bool {
	switch t {
	case IndexSQLite, IndexMemory, IndexElasticsearch:
		return true
	default:
		return false
	}
}

// ReplicaType selects a pinning replica implementation.
type ReplicaType string

// Available pinning replicas.
const (
	ReplicaMemory  ReplicaType = "memory"
	ReplicaCluster ReplicaType = "ipfs_cluster"
	ReplicaPinata  ReplicaType = "pinata"
)

// IsValid returns true if the replica type is recognised.
func (t ReplicaType) IsValid() bool {
	switch t {
	case ReplicaMemory, ReplicaCluster, ReplicaPinata:
		return true
	default:
		return false
	}
}

// StorageSettings configures the content store and its read pool.
type StorageSettings struct {
	Type StorageType `toml:"type"`

	// IPFSURL is the node API address, e.g. "localhost:5001".
	IPFSURL string `toml:"ipfs_url,omitempty"`

	// PebbleDir defaults to <data dir>/content.
	PebbleDir string `toml:"pebble_dir,omitempty"`

	// PoolSize bounds concurrent reads.
	PoolSize int `toml:"pool_size"`

	ReadTimeout     Duration `toml:"read_timeout"`
	WriteRetries    int      `toml:"write_retries"`
	WriteRetryDelay Duration `toml:"write_retry_delay"`
}

// IndexDefinition declares an index created at startup.
type IndexDefinition struct {
	Name string `toml:"name"`

	// MappingFile is an optional backend schema document.
	MappingFile string `toml:"mapping_file,omitempty"`
}

// IndexSettings configures the search index.
type IndexSettings struct {
	Type IndexType `toml:"type"`

	// URLs lists Elasticsearch nodes.
	URLs     []string `toml:"urls,omitempty"`
	Username string   `toml:"username,omitempty"`
	Password string   `toml:"password,omitempty"`

	// SQLitePath defaults to <data dir>/index.db.
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// SnapshotPath persists the memory index between runs when set.
	SnapshotPath string `toml:"snapshot_path,omitempty"`

	// IndexNullValues writes null and empty values as the null token.
	IndexNullValues bool `toml:"index_null_values"`

	Indexes []IndexDefinition `toml:"indexes,omitempty"`
}

// ReplicaSettings configures one pinning replica.
type ReplicaSettings struct {
	Type ReplicaType `toml:"type"`
	Name string      `toml:"name,omitempty"`

	// Endpoint is the service base URL.
	Endpoint string `toml:"endpoint,omitempty"`

	APIKey    string `toml:"api_key,omitempty"`
	SecretKey string `toml:"secret_key,omitempty"`

	// RequestsPerSecond and Burst rate limit hosted APIs.
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
	Burst             int     `toml:"burst,omitempty"`

	Timeout Duration `toml:"timeout,omitempty"`
}

// PinningSettings configures asynchronous pinning.
type PinningSettings struct {
	// Async defers pinning to a background scheduler.
	Async bool `toml:"async"`

	Interval    Duration `toml:"interval"`
	PageSize    int      `toml:"page_size"`
	MaxAttempts int      `toml:"max_attempts"`
}

// CacheSettings configures the payload cache.
type CacheSettings struct {
	// Size is the number of payloads kept. Zero disables the cache.
	Size int `toml:"size"`
}

// MetricsSettings configures the prometheus endpoint.
type MetricsSettings struct {
	Addr string `toml:"addr,omitempty"`
}

// Settings holds all application settings.
type Settings struct {
	DataDir  string            `toml:"data_dir,omitempty"`
	Storage  StorageSettings   `toml:"storage"`
	Index    IndexSettings     `toml:"index"`
	Replicas []ReplicaSettings `toml:"replicas,omitempty"`
	Pinning  PinningSettings   `toml:"pinning"`
	Cache    CacheSettings     `toml:"cache"`
	Metrics  MetricsSettings   `toml:"metrics"`
}

// DefaultSettings returns a local setup: pebble content store, sqlite index,
// synchronous pinning and no replicas.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{
			Type:            StoragePebble,
			IPFSURL:         "localhost:5001",
			PoolSize:        10,
			ReadTimeout:     Duration(30 * time.Second),
			WriteRetries:    3,
			WriteRetryDelay: Duration(time.Second),
		},
		Index: IndexSettings{
			Type:            IndexSQLite,
			URLs:            []string{"http://localhost:9200"},
			IndexNullValues: true,
		},
		Pinning: PinningSettings{
			Interval:    Duration(time.Minute),
			PageSize:    50,
			MaxAttempts: 5,
		},
		Cache: CacheSettings{Size: 128},
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if !s.Storage.Type.IsValid() {
		return fmt.Errorf("%w: storage type %q", ErrInvalidArgument, s.Storage.Type)
	}
	if s.Storage.Type == StorageIPFS && s.Storage.IPFSURL == "" {
		return fmt.Errorf("%w: ipfs_url is required for ipfs storage", ErrInvalidArgument)
	}
	if s.Storage.PoolSize <= 0 {
		return fmt.Errorf("%w: pool_size must be positive", ErrInvalidArgument)
	}
	if s.Storage.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive", ErrInvalidArgument)
	}
	if s.Storage.WriteRetries < 0 {
		return fmt.Errorf("%w: write_retries must not be negative", ErrInvalidArgument)
	}
	if !s.Index.Type.IsValid() {
		return fmt.Errorf("%w: index type %q", ErrInvalidArgument, s.Index.Type)
	}
	if s.Index.Type == IndexElasticsearch && len(s.Index.URLs) == 0 {
		return fmt.Errorf("%w: urls are required for elasticsearch", ErrInvalidArgument)
	}
	for i, r := range s.Replicas {
		if !r.Type.IsValid() {
			return fmt.Errorf("%w: replica %d type %q", ErrInvalidArgument, i, r.Type)
		}
		if r.Type != ReplicaMemory && r.Endpoint == "" {
			return fmt.Errorf("%w: replica %d endpoint is required", ErrInvalidArgument, i)
		}
		if r.Type == ReplicaPinata && (r.APIKey == "" || r.SecretKey == "") {
			return fmt.Errorf("%w: replica %d pinata keys are required", ErrInvalidArgument, i)
		}
	}
	if s.Pinning.Async {
		if s.Pinning.Interval <= 0 {
			return fmt.Errorf("%w: pinning interval must be positive", ErrInvalidArgument)
		}
		if s.Pinning.PageSize <= 0 {
			return fmt.Errorf("%w: pinning page_size must be positive", ErrInvalidArgument)
		}
	}
	if s.Cache.Size < 0 {
		return fmt.Errorf("%w: cache size must not be negative", ErrInvalidArgument)
	}
	return nil
}
