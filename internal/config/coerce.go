// internal/config/coerce.go
//
// Raw-string coercion for dotenv and environment values.
//
// Context
// -------
// Both overlay layers deliver strings.  Before the merged tree is decoded
// into `Settings`, every known key is converted to its field's Go type here
// so a bad value is reported against the exact key an operator typed.
//
// List fields accept a JSON array literal first (`["a","b"]`), and fall
// back to comma-separated values (`a, b`).  Blank items are dropped, so an
// empty string and `[]` both produce an empty list.

package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// settingsField pairs an environment key with the Go type it decodes into.
type settingsField struct {
	key string
	typ reflect.Type
}

// settingsFields is the flattened key space of Settings, in declaration order.
var settingsFields = collectFields(reflect.TypeOf(Settings{}))

// knownKeys indexes settingsFields for the env provider filter.
var knownKeys = func() map[string]bool {
	m := make(map[string]bool, len(settingsFields))
	for _, f := range settingsFields {
		m[f.key] = true
	}
	return m
}()

func collectFields(t reflect.Type) []settingsField {
	var out []settingsField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if f.Anonymous && f.Type.Kind() == reflect.Struct && strings.Contains(opts, "squash") {
			out = append(out, collectFields(f.Type)...)
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		out = append(out, settingsField{key: name, typ: f.Type})
	}
	return out
}

// coerce converts raw into a value assignable to typ.
func coerce(raw string, typ reflect.Type) (any, string, error) {
	switch typ.Kind() {
	case reflect.String:
		return raw, "", nil
	case reflect.Bool:
		b, err := parseBool(raw)
		return b, "bool", err
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		return n, "int", err
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		return f, "float", err
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.String {
			l, err := parseList(raw)
			return l, "list", err
		}
	}
	return nil, "type", fmt.Errorf("unsupported field type %s", typ)
}

// parseBool accepts true/false, 1/0, yes/no, and on/off in any case.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

// parseList reads a JSON array of strings, or comma-separated values when
// the input does not start with '['.
func parseList(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "[") {
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
		return compact(items), nil
	}
	return compact(strings.Split(s, ",")), nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
