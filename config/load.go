package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
)

// EnvPrefix marks environment variables that override configuration keys.
// MUNBON_<SECTION>_<KEY>=value maps to <section>.<key>; the key part keeps
// its underscores, e.g. MUNBON_INGRESS_MAX_BODY_BYTES → ingress.max_body_bytes.
const EnvPrefix = "MUNBON_"

// Load builds the effective configuration: built-in defaults, then each file
// merged in order, then environment overrides, validated against the schema
// and the cross-field rules.
func Load(paths ...string) (*Config, error) {
	doc, err := toDocument(Default())
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		layer, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		deepMerge(doc, layer)
	}

	applyEnv(doc, os.Environ())

	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	cfg, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "validate configuration")
	}
	return cfg, nil
}

func toDocument(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "toDocument", "marshal defaults")
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFatal(err, "config", "toDocument", "unmarshal defaults")
	}
	return doc, nil
}

func readLayer(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "readLayer", "read config file")
	}
	var layer map[string]any
	if err := json.Unmarshal(data, &layer); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%s: %w", path, err), "config", "readLayer", "parse config file")
	}
	return layer, nil
}

// deepMerge overlays src onto dst in place. Nested objects merge key by key;
// everything else, including arrays, replaces wholesale.
func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

// applyEnv overlays MUNBON_-prefixed environment variables. Values that
// parse as JSON scalars keep their type; everything else is a string.
func applyEnv(doc map[string]any, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.TrimPrefix(name, EnvPrefix), "_")
		if !ok || section == "" || key == "" {
			continue
		}

		target, ok := doc[strings.ToLower(section)].(map[string]any)
		if !ok {
			continue
		}
		target[strings.ToLower(key)] = coerceEnvValue(value)
	}
}

func coerceEnvValue(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		switch parsed.(type) {
		case float64, bool:
			return parsed
		}
	}
	return value
}

func validateSchema(doc map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return errors.WrapFatal(err, "config", "validateSchema", "run schema validation")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return errors.WrapFatal(
		fmt.Errorf("configuration rejected by schema: %s", strings.Join(msgs, "; ")),
		"config", "validateSchema", "check configuration document")
}

func decode(doc map[string]any) (*Config, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "decode", "marshal merged document")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "decode", "unmarshal configuration")
	}
	return &cfg, nil
}
