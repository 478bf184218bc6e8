// Package config loads the provider engine's configuration.
package config

import (
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"

	"github.com/zircuit-labs/provider-engine/duration"
)

type (
	// Config holds the knobs of the middleware. All timeouts default to zero,
	// which preserves the original wait-forever behavior; set them to opt in
	// to cancellation.
	Config struct {
		DefaultGas      uint64            // Gas limit applied to submissions when neither caller nor autofill produced one.
		EVMTimeout      duration.Duration // Upper bound on a single execution-engine run.
		GateWaitTimeout duration.Duration // Upper bound on waiting behind the execution gate.
		FetchTimeout    duration.Duration // Upper bound on a single fallback fetch.
		HeadTTL         duration.Duration // How long a fetched chain head is reused before refreshing.
		DSN             string            // Data Source Name for the submission journal; empty disables journalling.
	}
)

// DefaultConfig is the configuration used when no file overrides it.
var DefaultConfig = Config{
	DefaultGas: 0x9000,
	HeadTTL:    duration.Duration(2 * time.Second),
}

// Load reads the configuration file at path, layered over the defaults. An
// empty path returns the defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"defaultgas": DefaultConfig.DefaultGas,
		"headttl":    "2s",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
