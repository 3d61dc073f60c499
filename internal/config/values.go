package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ListValues returns the config as flat dot-separated keys. Secrets are
// masked when masked is true.
func ListValues(cfg *Config, masked bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if masked {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns the value of one flat key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return val, nil
}

// SetValue loads the config at path, sets one flat key from its string
// representation, and saves the result. The value is coerced to the type
// the key already has.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	flat := Flatten(m)

	current, ok := flat[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	coerced, err := coerce(value, current)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	flat[key] = coerced

	updated, err := FromMap(Unflatten(flat))
	if err != nil {
		return err
	}
	return Save(path, updated)
}

// coerce converts a string to the type of the current value. JSON
// round-tripping turns all numbers into float64.
func coerce(value string, current any) (any, error) {
	switch current.(type) {
	case bool:
		return strconv.ParseBool(value)
	case float64:
		return strconv.ParseFloat(value, 64)
	case string:
		return value, nil
	default:
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("empty value")
		}
		return nil, fmt.Errorf("key holds a %T, set it by editing the config file", current)
	}
}
