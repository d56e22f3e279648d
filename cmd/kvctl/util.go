package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ostafen/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var (
		lines []string
		line  strings.Builder
	)

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}

	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// initConfig reads .env files and KV_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("kv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func engineList() string {
	return strings.Join(kv.Engines(), ", ")
}

// overridden reports whether a setting was given on the command line or in
// the environment.
func overridden(cmd *cobra.Command, key string) bool {
	if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
		return true
	}
	_, ok := os.LookupEnv(envName(key))
	return ok
}

func envName(key string) string {
	return "KV_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// bucketName returns the selected bucket, with "default" spelled as the
// empty name.
func bucketName() string {
	name := viper.GetString("bucket")
	if name == kv.DefaultBucketName {
		return ""
	}
	return name
}

func bucketFlags() kv.BucketFlags {
	if viper.GetBool("int") {
		return kv.IntegerKey
	}
	return 0
}

// buildConfig assembles the environment configuration from the config file,
// if any, and the flags.
func buildConfig(cmd *cobra.Command) (*kv.Config, error) {
	var opts []kv.Option
	add := func(key string, opt kv.Option) {
		if viper.GetString("config") == "" || overridden(cmd, key) {
			opts = append(opts, opt)
		}
	}

	add("engine", kv.WithEngine(viper.GetString("engine")))
	add("readonly", kv.WithReadOnly(viper.GetBool("readonly")))
	add("write-timeout", kv.WithWriteTimeout(viper.GetDuration("write-timeout")))
	add("map-size", kv.WithMapSize(viper.GetInt64("map-size")))

	name := bucketName()
	file := viper.GetString("config")
	if file == "" {
		opts = append(opts, kv.WithBucket(name, bucketFlags()))
		return kv.NewConfig(viper.GetString("path"), opts...)
	}

	cfg, err := kv.LoadConfig(file)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	if cfg.Path == "" || overridden(cmd, "path") {
		cfg.Path = viper.GetString("path")
	}

	// Buckets the file already declares keep their flags.
	if _, ok := cfg.Buckets[name]; !ok || overridden(cmd, "int") {
		opts = append(opts, kv.WithBucket(name, bucketFlags()))
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withBucket opens the bucket selected by the flags and passes it to fn,
// with keys as strings or as integers.
func withBucket(fn func(s *kv.Store, b *kv.Bucket[string, []byte]) error, intFn func(s *kv.Store, b *kv.Bucket[kv.Integer, []byte]) error) error {
	return handle.Read(func(s *kv.Store) error {
		name := bucketName()
		flags := s.Config().Buckets[name]
		if flags.Has(kv.IntegerKey) {
			b, err := kv.OpenIntBucket[[]byte](s, name)
			if err != nil {
				return err
			}
			return intFn(s, b)
		}

		b, err := kv.OpenBucket[string, []byte](s, name)
		if err != nil {
			return err
		}
		return fn(s, b)
	})
}

func parseInteger(s string) (kv.Integer, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return kv.Integer{}, fmt.Errorf("integer key %q: %w", s, err)
	}
	return kv.IntegerFrom(n), nil
}
