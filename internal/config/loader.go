package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey lists files merged underneath the including file. Later
// includes override earlier ones and the including file overrides them all.
const includeKey = "$include"

// Load reads path, resolves includes and environment references, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeStrict(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRaw reads path into a generic map with every include merged in.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	l := &includeLoader{}
	return l.load(path)
}

// includeLoader tracks the chain of files being loaded so a file that
// includes itself, directly or not, is reported with the full chain.
type includeLoader struct {
	stack []string
}

func (l *includeLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for _, open := range l.stack {
		if open == abs {
			return nil, fmt.Errorf("config include cycle: %s", l.chain(abs))
		}
	}
	l.stack = append(l.stack, abs)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument([]byte(os.ExpandEnv(string(data))), abs)
	if err != nil {
		return nil, err
	}

	includes, err := popIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}

	base := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		included, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		base = mergeMaps(base, included)
	}
	return mergeMaps(base, doc), nil
}

func (l *includeLoader) chain(next string) string {
	names := make([]string, 0, len(l.stack)+1)
	for _, p := range l.stack {
		names = append(names, filepath.Base(p))
	}
	return strings.Join(append(names, filepath.Base(next)), " -> ")
}

// parseDocument decodes one config file. .json and .json5 files are read as
// JSON5; anything else as a single YAML document. An empty file is an empty
// map.
func parseDocument(data []byte, path string) (map[string]any, error) {
	name := filepath.Base(path)
	doc := map[string]any{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: multiple YAML documents are not supported", name)
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// popIncludes removes the include directive from doc and returns its paths.
func popIncludes(doc map[string]any) ([]string, error) {
	val, ok := doc[includeKey]
	if !ok {
		return nil, nil
	}
	delete(doc, includeKey)

	var paths []string
	switch v := val.(type) {
	case nil:
	case string:
		paths = append(paths, v)
	case []any:
		for i, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", includeKey, i)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a path or a list of paths", includeKey)
	}

	out := paths[:0]
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// mergeMaps overlays src onto dst. Nested maps merge key by key; every other
// value, lists included, is replaced.
func mergeMaps(dst, src map[string]any) map[string]any {
	for key, value := range src {
		sub, isMap := value.(map[string]any)
		existing, hasMap := dst[key].(map[string]any)
		if isMap && hasMap {
			dst[key] = mergeMaps(existing, sub)
			continue
		}
		dst[key] = value
	}
	return dst
}

// decodeStrict round-trips raw through YAML into Config, rejecting unknown
// keys so typos fail loudly.
func decodeStrict(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
