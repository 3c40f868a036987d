package config

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// EnvMapping binds an environment variable to a config path
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var (
	cachedMappings []EnvMapping
	mappingsOnce   sync.Once
	durationType   = reflect.TypeOf(time.Duration(0))
)

// GenerateEnvMappings derives environment mappings from the `env` struct tags of Config.
func GenerateEnvMappings() []EnvMapping {
	mappingsOnce.Do(func() {
		cachedMappings = extractMappings(reflect.TypeOf(Config{}), "")
		sort.Slice(cachedMappings, func(i, j int) bool {
			return cachedMappings[i].ConfigPath < cachedMappings[j].ConfigPath
		})
	})
	return cachedMappings
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			mappings = append(mappings, extractMappings(field.Type, path)...)
			continue
		}
		if envVar := field.Tag.Get("env"); envVar != "" && envVar != "-" {
			mappings = append(mappings, EnvMapping{
				EnvVar:     envVar,
				ConfigPath: path,
				Sensitive:  field.Tag.Get("sensitive") == "true" || field.Type.Name() == "SensitiveString",
			})
		}
	}
	return mappings
}

// GenerateEnvToConfigMap generates a map from env var to config path
func GenerateEnvToConfigMap() map[string]string {
	mappings := GenerateEnvMappings()
	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.EnvVar] = m.ConfigPath
	}
	return result
}
