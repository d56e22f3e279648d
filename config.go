package kv

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ostafen/kv/engine"
	"github.com/spf13/viper"
)

const (
	GCReclaimIntervalDefault = time.Minute * 5
	GCDiscardRatioDefault    = 0.5

	DefaultEngine       = "mdbx"
	DefaultWriteTimeout = time.Second * 10
	DefaultMaxBuckets   = 16

	// DefaultBucketName is how the unnamed bucket is spelled in
	// configuration files.
	DefaultBucketName = "default"
)

// BucketFlags select the key ordering of a bucket.
type BucketFlags = engine.Flags

const (
	IntegerKey = engine.IntegerKey
	DupSort    = engine.DupSort
	ReverseKey = engine.ReverseKey
)

// ParseBucketFlags parses flag names such as "integer_key". Each name may
// itself hold several names separated by "|". "none" and "" are ignored.
func ParseBucketFlags(names ...string) (BucketFlags, error) {
	var flags BucketFlags
	for _, name := range names {
		for _, n := range strings.Split(name, "|") {
			n = strings.TrimSpace(n)
			if n == "" || n == "none" {
				continue
			}

			f, ok := engine.ParseFlag(n)
			if !ok {
				return 0, fmt.Errorf("unknown bucket flag %q", n)
			}
			flags |= f
		}
	}
	return flags, nil
}

// Config contains the parameters of an environment and the buckets it
// declares. A Store keeps its own copy, so changing a Config after opening
// has no effect on the opened Store.
type Config struct {
	Path              string
	Engine            string
	ReadOnly          bool
	MapSize           int64
	MaxReaders        int
	MaxBuckets        int
	NoSync            bool
	FileMode          os.FileMode
	OpenTimeout       time.Duration
	WriteTimeout      time.Duration
	GCReclaimInterval time.Duration
	GCDiscardRatio    float64

	// Buckets maps bucket names to their flags. The empty name is the
	// default bucket.
	Buckets map[string]BucketFlags

	// Logger receives store and engine logs. When nil, nothing is logged.
	Logger log15.Logger
}

func defaultConfig() *Config {
	return &Config{
		Engine:            DefaultEngine,
		MaxBuckets:        DefaultMaxBuckets,
		WriteTimeout:      DefaultWriteTimeout,
		GCReclaimInterval: GCReclaimIntervalDefault,
		GCDiscardRatio:    GCDiscardRatioDefault,
		Buckets:           map[string]BucketFlags{},
	}
}

// NewConfig returns the default configuration for path with opts applied.
func NewConfig(path string, opts ...Option) (*Config, error) {
	c := defaultConfig()
	c.Path = path
	return c.applyOptions(opts)
}

func (c *Config) applyOptions(opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func normalizeBucketName(name string) string {
	if name == DefaultBucketName {
		return ""
	}
	return name
}

// Bucket declares a bucket and returns c.
func (c *Config) Bucket(name string, flags BucketFlags) *Config {
	if c.Buckets == nil {
		c.Buckets = map[string]BucketFlags{}
	}
	c.Buckets[normalizeBucketName(name)] = flags
	return c
}

func (c *Config) clone() Config {
	cc := *c
	cc.Buckets = make(map[string]BucketFlags, len(c.Buckets)+1)
	for name, flags := range c.Buckets {
		cc.Buckets[normalizeBucketName(name)] = flags
	}
	if _, ok := cc.Buckets[""]; !ok {
		cc.Buckets[""] = 0
	}
	return cc
}

func (c *Config) logger() log15.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	l := log15.New("module", "kv")
	l.SetHandler(log15.DiscardHandler())
	return l
}

func (c *Config) engineOptions() engine.Options {
	return engine.Options{
		Path:              c.Path,
		ReadOnly:          c.ReadOnly,
		NoSync:            c.NoSync,
		FileMode:          c.FileMode,
		MapSize:           c.MapSize,
		MaxReaders:        c.MaxReaders,
		MaxBuckets:        max(c.MaxBuckets, len(c.Buckets)),
		OpenTimeout:       c.OpenTimeout,
		GCReclaimInterval: c.GCReclaimInterval,
		GCDiscardRatio:    c.GCDiscardRatio,
		Logger:            c.logger(),
	}
}

// Option is a function that takes a config struct and modifies it
type Option func(c *Config) error

// WithEngine selects the storage engine by name: "mdbx", "lmdb", "bbolt" or
// "badger".
func WithEngine(name string) Option {
	return func(c *Config) error {
		if _, ok := engines[name]; !ok {
			return fmt.Errorf("unknown engine %q", name)
		}
		c.Engine = name
		return nil
	}
}

func WithReadOnly(readOnly bool) Option {
	return func(c *Config) error {
		c.ReadOnly = readOnly
		return nil
	}
}

// WithMapSize sets the maximum size of memory mapped engines, in bytes.
func WithMapSize(size int64) Option {
	return func(c *Config) error {
		if size < 0 {
			return fmt.Errorf("invalid map size %d", size)
		}
		c.MapSize = size
		return nil
	}
}

func WithMaxReaders(n int) Option {
	return func(c *Config) error {
		c.MaxReaders = n
		return nil
	}
}

func WithMaxBuckets(n int) Option {
	return func(c *Config) error {
		c.MaxBuckets = n
		return nil
	}
}

// WithNoSync disables the flush to disk at commit time.
func WithNoSync(noSync bool) Option {
	return func(c *Config) error {
		c.NoSync = noSync
		return nil
	}
}

// WithWriteTimeout bounds how long WriteTxn waits for the writer slot. Zero
// fails immediately when a writer is active; a negative value waits forever.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.WriteTimeout = d
		return nil
	}
}

func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.OpenTimeout = d
		return nil
	}
}

func WithLogger(l log15.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithBucket declares a bucket. Use "" or "default" for the default bucket.
func WithBucket(name string, flags BucketFlags) Option {
	return func(c *Config) error {
		c.Bucket(name, flags)
		return nil
	}
}

// GCReclaimInterval sets the value log garbage collection period of engines
// that have one.
func GCReclaimInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("invalid gc reclaim interval %s", d)
		}
		c.GCReclaimInterval = d
		return nil
	}
}

func GCDiscardRatio(ratio float64) Option {
	return func(c *Config) error {
		if ratio <= 0 || ratio >= 1 {
			return fmt.Errorf("invalid gc discard ratio %v", ratio)
		}
		c.GCDiscardRatio = ratio
		return nil
	}
}

type bucketEntry struct {
	Name  string   `mapstructure:"name"`
	Flags []string `mapstructure:"flags"`
}

type fileConfig struct {
	Path              string        `mapstructure:"path"`
	Engine            string        `mapstructure:"engine"`
	ReadOnly          bool          `mapstructure:"read_only"`
	MapSize           int64         `mapstructure:"map_size"`
	MaxReaders        int           `mapstructure:"max_readers"`
	MaxBuckets        int           `mapstructure:"max_buckets"`
	NoSync            bool          `mapstructure:"no_sync"`
	FileMode          uint32        `mapstructure:"file_mode"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	GCReclaimInterval time.Duration `mapstructure:"gc_reclaim_interval"`
	GCDiscardRatio    float64       `mapstructure:"gc_discard_ratio"`
	Buckets           []bucketEntry `mapstructure:"buckets"`
}

// LoadConfig reads a configuration file. The format follows the file
// extension: toml, yaml or json. Settings missing from the file keep their
// defaults.
func LoadConfig(file string) (*Config, error) {
	def := defaultConfig()

	v := viper.New()
	v.SetConfigFile(file)
	v.SetDefault("engine", def.Engine)
	v.SetDefault("max_buckets", def.MaxBuckets)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("gc_reclaim_interval", def.GCReclaimInterval)
	v.SetDefault("gc_discard_ratio", def.GCDiscardRatio)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}

	opts := []Option{
		WithEngine(fc.Engine),
		WithReadOnly(fc.ReadOnly),
		WithMapSize(fc.MapSize),
		WithMaxReaders(fc.MaxReaders),
		WithMaxBuckets(fc.MaxBuckets),
		WithNoSync(fc.NoSync),
		WithOpenTimeout(fc.OpenTimeout),
		WithWriteTimeout(fc.WriteTimeout),
		GCReclaimInterval(fc.GCReclaimInterval),
		GCDiscardRatio(fc.GCDiscardRatio),
	}
	for _, b := range fc.Buckets {
		flags, err := ParseBucketFlags(b.Flags...)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", b.Name, err)
		}
		opts = append(opts, WithBucket(b.Name, flags))
	}

	c, err := NewConfig(fc.Path, opts...)
	if err != nil {
		return nil, err
	}
	c.FileMode = os.FileMode(fc.FileMode)
	return c, nil
}

// Save writes c to file, in the format given by the file extension.
func (c *Config) Save(file string) error {
	buckets := make([]map[string]any, 0, len(c.Buckets))
	for _, name := range slices.Sorted(maps.Keys(c.Buckets)) {
		flags := c.Buckets[name]
		if name == "" {
			name = DefaultBucketName
		}
		buckets = append(buckets, map[string]any{
			"name":  name,
			"flags": flags.Names(),
		})
	}

	v := viper.New()
	v.Set("path", c.Path)
	v.Set("engine", c.Engine)
	v.Set("read_only", c.ReadOnly)
	v.Set("map_size", c.MapSize)
	v.Set("max_readers", c.MaxReaders)
	v.Set("max_buckets", c.MaxBuckets)
	v.Set("no_sync", c.NoSync)
	v.Set("file_mode", uint32(c.FileMode))
	v.Set("open_timeout", c.OpenTimeout.String())
	v.Set("write_timeout", c.WriteTimeout.String())
	v.Set("gc_reclaim_interval", c.GCReclaimInterval.String())
	v.Set("gc_discard_ratio", c.GCDiscardRatio)
	v.Set("buckets", buckets)
	return v.WriteConfigAs(file)
}
