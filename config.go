package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/utilitywarehouse/git-mirror-push/giturl"
	"github.com/utilitywarehouse/git-mirror-push/mirror"
	"gopkg.in/yaml.v3"
)

var (
	errConfigRead  = errors.New("unable to read config file")
	errConfigParse = errors.New("unable to parse config file")
)

// parseConfigFile reads and validates mirror config from the given path.
// files with `.toml` extension are decoded as TOML everything else as YAML.
func parseConfigFile(path string) (*mirror.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "unable to read config file %s", path), errConfigRead)
	}

	unmarshal := yaml.Unmarshal
	if isTOML(path) {
		unmarshal = toml.Unmarshal
	}

	var raw map[string]interface{}
	if err := unmarshal(data, &raw); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "unable to parse config file %s", path), errConfigParse)
	}

	if err := validateConfig(raw); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid config file %s", path), errConfigParse)
	}

	conf := &mirror.Config{}
	if err := unmarshal(data, conf); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "unable to parse config file %s", path), errConfigParse)
	}

	warnSameRepositories(conf)

	return conf, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func validateConfig(raw map[string]interface{}) error {
	// mirrors section is mandatory
	rawMirrors, ok := raw["mirrors"]
	if !ok {
		return errors.New("mirrors config section is missing")
	}

	// unknown keys are ignored by decoder so only warn about them
	allowedConfigKeys := getAllowedKeys(mirror.Config{})
	for _, key := range findUnexpectedKeys(raw, allowedConfigKeys) {
		logger.Warn("ignoring unexpected config key", "key", "."+key)
	}

	if v, ok := raw["continue_on_error"]; ok {
		if _, ok := v.(bool); !ok {
			return errors.Newf("continue_on_error must be a boolean got %T", v)
		}
	}

	mirrors, ok := toList(rawMirrors)
	if !ok {
		return errors.New("mirrors config section must be a list")
	}

	// check each mirror in "mirrors" section
	allowedMirrorKeys := getAllowedKeys(mirror.Spec{})
	for i, mirrorInterface := range mirrors {
		mirrorMap, ok := mirrorInterface.(map[string]interface{})
		if !ok {
			return errors.Newf("mirrors[%d] is not valid", i)
		}

		for _, key := range findUnexpectedKeys(mirrorMap, allowedMirrorKeys) {
			logger.Warn("ignoring unexpected config key", "key", fmt.Sprintf(".mirrors[%d].%s", i, key))
		}

		for _, key := range allowedMirrorKeys {
			v, ok := mirrorMap[key]
			if !ok {
				return errors.Newf("mirrors[%d] is missing '%s'", i, key)
			}
			if _, ok := v.(string); !ok {
				return errors.Newf("mirrors[%d].%s must be a string got %T", i, key, v)
			}
		}
	}

	return nil
}

// toList returns sequence as list of values. YAML always decodes sequences
// as []interface{} but TOML decodes array of tables as []map[string]interface{}
func toList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []map[string]interface{}:
		l := make([]interface{}, 0, len(list))
		for _, m := range list {
			l = append(l, m)
		}
		return l, true
	}
	return nil, false
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

// findUnexpectedKeys returns sorted list of keys which are not in allowedKeys
func findUnexpectedKeys(raw map[string]interface{}, allowedKeys []string) []string {
	var keys []string
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if !slices.Contains(allowedKeys, key) {
			keys = append(keys, key)
		}
	}

	return keys
}

// warnSameRepositories logs warning for mirrors where source and destination
// point to the same repository. such mirror is still processed.
func warnSameRepositories(conf *mirror.Config) {
	for i, m := range conf.Mirrors {
		if same, _ := giturl.SameRawURL(m.From, m.To); same {
			logger.Warn("mirror source and destination are the same repository", "index", i, "from", m.From, "to", m.To)
		}
	}
}
