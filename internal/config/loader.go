package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidTokenizerNames lists known tokenizer backend names, used by [Validate]
// to warn about unrecognised ones rather than reject them outright (a caller
// may have registered a third-party backend under any name it likes).
var ValidTokenizerNames = []string{"mock", "bpe-file"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Engine.Schema.Path == "" && cfg.Engine.Schema.Inline == "" {
		errs = append(errs, errors.New("engine.schema: either path or inline must be set"))
	}

	if d := cfg.Engine.Delimiters; d != nil {
		if d.Open == "" || d.Close == "" {
			errs = append(errs, errors.New("engine.delimiters: both open and close are required when delimiters are set"))
		}
	}

	if cfg.Engine.BufferLength < -1 {
		errs = append(errs, fmt.Errorf("engine.buffer_length %d must be >= -1", cfg.Engine.BufferLength))
	}
	if cfg.Engine.BufferLength > 0 && cfg.Engine.Delimiters == nil {
		slog.Warn("engine.buffer_length is set but engine.delimiters is empty; a positive buffer length only has an effect when structured output is framed by delimiters")
	}

	if name := cfg.Engine.Vocabulary.Tokenizer.Name; name != "" && !slices.Contains(ValidTokenizerNames, name) {
		slog.Warn("unknown tokenizer name — may be a typo or third-party backend", "name", name, "known", ValidTokenizerNames)
	}

	return errors.Join(errs...)
}
