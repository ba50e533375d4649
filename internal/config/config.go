// Package config layers configuration sources for the daemon: explicit
// CLI flags win over environment variables, which win over the TOML file.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/audionode/internal/logging"
)

// envPrefix namespaces the daemon's environment variables.
const envPrefix = "AUDIONODE_"

// LoadConfig fills opts from the TOML file and environment, never
// overwriting a flag the user set explicitly on the command line. opts
// must be a pointer to a flat struct; fields opt in via `toml` and `env`
// tags, and a field named Config supplies the TOML file path.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()
	pinned := flagPinnedFields(t, cmd)

	file, err := readTOML(configPath(v, t))
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tags := t.Field(i)
		if pinned[tags.Name] || !field.CanSet() {
			continue
		}
		if key := tags.Tag.Get("toml"); key != "" && file != nil {
			if value := lookupTable(file, key); value != nil {
				assign(field, value)
			}
		}
		if key := tags.Tag.Get("env"); key != "" {
			if raw := os.Getenv(envPrefix + key); raw != "" {
				assignString(field, raw)
			}
		}
	}
	return nil
}

// flagPinnedFields returns the struct field names whose CLI flags were
// set explicitly on the command line.
func flagPinnedFields(t reflect.Type, cmd *cobra.Command) map[string]bool {
	pinned := make(map[string]bool)
	if cmd == nil {
		return pinned
	}
	changed := make(map[string]bool)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		if changed[fieldNameToFlag(name)] {
			pinned[name] = true
		}
	}
	return pinned
}

// configPath reads the TOML file path from the Config field, if any.
func configPath(v reflect.Value, t reflect.Type) string {
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Name == "Config" {
			return v.Field(i).String()
		}
	}
	return ""
}

// readTOML parses the config file into a generic table. A missing file
// is not an error; running without a config file is normal.
func readTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return table, nil
}

// fieldNameToFlag converts a struct field name to its CLI flag name.
// Example: "SettingsPath" -> "settings-path", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// lookupTable resolves a dotted key like "logging.debug" against nested
// TOML tables.
func lookupTable(table map[string]any, key string) any {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[parts[len(parts)-1]]
}

// assign stores a decoded TOML value into a struct field, tolerating the
// int64/float64 ambiguity of the decoder. Mismatched types are skipped.
func assign(field reflect.Value, value any) {
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// assignString parses an environment variable into a struct field.
// Unparseable values are skipped, leaving the prior value in place.
func assignString(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// LoadLoggingConfig reads the [logging] table from the TOML config file.
// Missing or unreadable files fall back to defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	// level and format are reserved keys; everything else is a
	// per-module override.
	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
