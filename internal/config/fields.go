package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Field is one leaf of Config addressed by its dot-separated JSON path, such
// as "llm.api_key".
type Field struct {
	Key    string
	Secret bool
	value  reflect.Value
}

// Fields returns the leaves of cfg in declaration order. Setting a returned
// field writes through to cfg.
func Fields(cfg *Config) []Field {
	var out []Field
	walk("", reflect.ValueOf(cfg).Elem(), &out)
	return out
}

func walk(prefix string, v reflect.Value, out *[]Field) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if fv := v.Field(i); fv.Kind() == reflect.Struct {
			walk(name, fv, out)
		} else {
			*out = append(*out, Field{Key: name, Secret: sf.Tag.Get("secret") == "true", value: fv})
		}
	}
}

// Lookup returns the field of cfg named key.
func Lookup(cfg *Config, key string) (Field, error) {
	key = strings.TrimSpace(key)
	for _, f := range Fields(cfg) {
		if f.Key == key {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("unknown config key: %s", key)
}

// IsSecretKey reports whether key names a credential.
func IsSecretKey(key string) bool {
	f, err := Lookup(&Config{}, key)
	return err == nil && f.Secret
}

// Value returns the current value.
func (f Field) Value() any {
	return f.value.Interface()
}

// String renders the value; lists are comma separated.
func (f Field) String() string {
	if f.value.Kind() == reflect.Slice {
		parts := make([]string, f.value.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(f.value.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(f.value.Interface())
}

// Display is String with secrets masked.
func (f Field) Display() string {
	if f.Secret {
		return Mask(f.String())
	}
	return f.String()
}

// Set parses raw according to the field's type. Lists accept "1,2" or a JSON
// array.
func (f Field) Set(raw string) error {
	raw = strings.TrimSpace(raw)
	switch f.value.Kind() {
	case reflect.String:
		f.value.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", f.Key, raw)
		}
		f.value.SetInt(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s expects a number, got %q", f.Key, raw)
		}
		f.value.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", f.Key, raw)
		}
		f.value.SetBool(b)
	case reflect.Slice:
		if !strings.HasPrefix(raw, "[") {
			raw = "[" + raw + "]"
		}
		list := reflect.New(f.value.Type())
		if err := json.Unmarshal([]byte(raw), list.Interface()); err != nil {
			return fmt.Errorf("%s expects a list: %w", f.Key, err)
		}
		f.value.Set(list.Elem())
	default:
		return fmt.Errorf("%s cannot be set from the command line", f.Key)
	}
	return nil
}

// Mask hides all but the last four characters of a secret. Values of four
// characters or fewer are hidden entirely.
func Mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***"
	default:
		return "***" + s[len(s)-4:]
	}
}
