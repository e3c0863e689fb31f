package config

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load reads the base config file, deep-merges any overlay files on
// top in order, then applies inline JSON overrides last. Defaults fill
// whatever the merged document leaves unset.
func Load(basePath string, overlayPaths []string, inlineJSON []byte) (*Config, error) {
	k := koanf.New(".")

	if basePath != "" {
		if err := k.Load(file.Provider(basePath), parserFor(basePath)); err != nil {
			return nil, fmt.Errorf("load config %s: %w", basePath, err)
		}
	}
	for _, p := range overlayPaths {
		if p == "" {
			continue
		}
		if err := k.Load(file.Provider(p), parserFor(p)); err != nil {
			return nil, fmt.Errorf("load config overlay %s: %w", p, err)
		}
	}
	if len(inlineJSON) > 0 {
		if err := k.Load(rawbytes.Provider(inlineJSON), kjson.Parser()); err != nil {
			return nil, fmt.Errorf("parse inline config overrides: %w", err)
		}
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if errs := Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser()
	default:
		return kjson.Parser()
	}
}
