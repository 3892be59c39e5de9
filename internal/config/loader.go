// Package config populates tagged option structs from environment variables,
// dotenv files and YAML files.
//
// Fields are described with struct tags:
//
//	env:"CSVKIT_DELIMITER"   environment / dotenv key
//	yaml:"delimiter"         YAML key
//	default:","              value used when no source provides one
//
// Supported field kinds are string, bool, int and rune.
//
// Values always pass through the same string parsing, whatever their source,
// so a YAML file and an environment variable accept identical spellings.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source looks up the raw value for a struct field.
type Source func(field reflect.StructField) (string, bool)

// Env reads the env tag from the process environment.
func Env() Source {
	return func(field reflect.StructField) (string, bool) {
		key := field.Tag.Get("env")
		if key == "" {
			return "", false
		}
		v := os.Getenv(key)
		return v, v != ""
	}
}

// Map reads values keyed by the given struct tag.
func Map(values map[string]string, tag string) Source {
	return func(field reflect.StructField) (string, bool) {
		key := strings.Split(field.Tag.Get(tag), ",")[0]
		if key == "" || key == "-" {
			return "", false
		}
		v, ok := values[key]
		return v, ok && v != ""
	}
}

// LoadEnv populates dst (a pointer to struct) from environment variables.
func LoadEnv(dst any) error {
	return Load(dst, Env())
}

// LoadDotenv populates dst from a dotenv file. Keys are the env tag names.
// The process environment is neither read nor modified.
func LoadDotenv(path string, dst any) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read dotenv %s: %w", path, err)
	}
	return Load(dst, Map(values, "env"))
}

// LoadYAML populates dst from a flat YAML mapping keyed by the yaml tag names.
func LoadYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read yaml %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml %s: %w", path, err)
	}

	values := make(map[string]string, len(doc))
	for k, v := range doc {
		switch v.(type) {
		case nil:
			continue
		case []any, map[string]any:
			return fmt.Errorf("parse yaml %s: %s must be a scalar", path, k)
		default:
			values[k] = fmt.Sprint(v)
		}
	}
	return Load(dst, Map(values, "yaml"))
}

// Load populates dst (a pointer to struct) from src, applying defaults for
// fields src does not provide.
func Load(dst any, src Source) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config load: destination must be a pointer to struct, got %T", dst)
	}
	if err := loadStruct(v.Elem(), src); err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	return nil
}

// loadStruct populates the tagged fields of v from src.
func loadStruct(v reflect.Value, src Source) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			name = field.Tag.Get("yaml")
		}
		if name == "" || name == "-" {
			continue
		}

		value, ok := src(field)
		if !ok {
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int32:
		// rune fields hold a single character
		r, err := parseRune(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(r))

	case reflect.Int:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(int64(i))

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// parseRune accepts a single character or one of the names tab, \t, space,
// comma, semicolon and pipe.
func parseRune(value string) (rune, error) {
	switch strings.ToLower(value) {
	case `\t`, "tab":
		return '\t', nil
	case "space":
		return ' ', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError || size != len(value) {
		return 0, fmt.Errorf("expected a single character")
	}
	return r, nil
}
