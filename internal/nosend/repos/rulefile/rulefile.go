// Package rulefile loads no-send rules for tenant lists from YAML, JSON and
// TOML files.
//
// A file describes one list:
//
//	tenant_id: 1
//	list_id: 42
//	rules:
//	  - setting_type: day_of_week
//	    name: Weekend
//	    day_of_week_list: [6, 7]
//
// Times and dates are strings ("22:00:00", "2025-01-01"); quote them in TOML.
// Unquoted YAML dates are accepted. Each list may appear in only one file.
package rulefile

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"

	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/gateways/wire"
	"github.com/haukened/nosend/internal/nosend/services/validator"
)

// ListFile is the validated content of one rule file.
type ListFile struct {
	Path  string
	Key   domain.ListKey
	Specs []validator.RuleSpec
}

type document struct {
	TenantID uint64                   `json:"tenant_id"`
	ListID   uint64                   `json:"list_id"`
	Rules    []wire.CreateRuleRequest `json:"rules"`
}

// LoadDirectory walks dir in lexical order and loads every supported rule
// file. Files with other extensions are ignored. The first invalid file
// aborts the load, as does a second file for a list already seen.
func LoadDirectory(dir string, rv *validator.RuleValidator) ([]ListFile, error) {
	var files []ListFile
	seen := map[domain.ListKey]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		lf, ok, err := LoadFile(path, rv)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if prev, dup := seen[lf.Key]; dup {
			return fmt.Errorf("rule files %s and %s both describe list %s", prev, path, lf.Key)
		}
		seen[lf.Key] = path
		files = append(files, lf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// LoadFile loads and validates one rule file. ok is false when the extension
// is not supported.
func LoadFile(path string, rv *validator.RuleValidator) (lf ListFile, ok bool, err error) {
	parser := parserFor(path)
	if parser == nil {
		return ListFile{}, false, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return ListFile{}, false, fmt.Errorf("failed to load rule file %s: %w", path, err)
	}
	var doc document
	if err := k.UnmarshalWithConf("", &doc, unmarshalConf(&doc)); err != nil {
		return ListFile{}, false, fmt.Errorf("failed to decode rule file %s: %w", path, err)
	}
	if doc.TenantID == 0 {
		return ListFile{}, false, fmt.Errorf("rule file %s missing 'tenant_id'", path)
	}
	if doc.ListID == 0 {
		return ListFile{}, false, fmt.Errorf("rule file %s missing 'list_id'", path)
	}

	lf = ListFile{Path: path, Key: domain.ListKey{TenantID: doc.TenantID, ListID: doc.ListID}}
	for i, req := range doc.Rules {
		spec, err := req.ToSpec(lf.Key)
		if err == nil {
			_, err = rv.Build(spec)
		}
		if err != nil {
			return ListFile{}, false, fmt.Errorf("invalid rule %d in %s: %w", i, path, err)
		}
		lf.Specs = append(lf.Specs, spec)
	}
	return lf, true, nil
}

// unmarshalConf mirrors koanf's default decoder and additionally renders
// YAML timestamps back into the string forms the wire types expect.
func unmarshalConf(out any) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				timestampToStringHook,
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc()),
			Result:           out,
			WeaklyTypedInput: true,
		},
	}
}

// timestampToStringHook formats a time.Time decoded into a string field as a
// date, or as RFC 3339 when it carries a clock so date parsing rejects it.
func timestampToStringHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	tm, ok := data.(time.Time)
	if !ok {
		return data, nil
	}
	if to.Kind() == reflect.Ptr {
		to = to.Elem()
	}
	if to.Kind() != reflect.String {
		return data, nil
	}
	if h, m, sec := tm.Clock(); h == 0 && m == 0 && sec == 0 && tm.Nanosecond() == 0 {
		return tm.Format(time.DateOnly), nil
	}
	return tm.Format(time.RFC3339), nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return nil
	}
}
