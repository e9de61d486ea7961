// Package localization serves the bot's message catalogue.
//
// Catalogues are YAML files embedded from translations/. Nested sections are flattened
// into dotted keys at load, so "purchase.summary" addresses purchase -> summary.
package localization

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed translations/*.yaml
var translationsFS embed.FS

// DefaultLanguage is used when a caller passes no language or an unknown one.
const DefaultLanguage = "pt"

type Service struct {
	catalogues map[string]map[string]string
}

func NewService() (*Service, error) {
	entries, err := translationsFS.ReadDir("translations")
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}

	s := &Service{catalogues: make(map[string]map[string]string)}
	for _, entry := range entries {
		lang, ok := strings.CutSuffix(entry.Name(), ".yaml")
		if !ok {
			continue
		}

		data, err := translationsFS.ReadFile("translations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s catalogue: %w", lang, err)
		}

		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse %s catalogue: %w", lang, err)
		}

		flat := make(map[string]string)
		if err := flatten("", tree, flat); err != nil {
			return nil, fmt.Errorf("%s catalogue: %w", lang, err)
		}
		s.catalogues[lang] = flat
	}

	if _, ok := s.catalogues[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("no %s catalogue embedded", DefaultLanguage)
	}

	return s, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for name, value := range node {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		switch v := value.(type) {
		case string:
			out[key] = v
		case map[string]any:
			if err := flatten(key, v, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s: unsupported value %T", key, value)
		}
	}
	return nil
}

// Get renders the message under key. Unknown keys come back verbatim so a missing entry
// shows up in the chat instead of an empty reply. {{name}} placeholders are filled from
// params; placeholders without a param are left as is.
func (s *Service) Get(lang, key string, params map[string]interface{}) string {
	catalogue, ok := s.catalogues[lang]
	if !ok {
		catalogue = s.catalogues[DefaultLanguage]
	}

	text, ok := catalogue[key]
	if !ok {
		return key
	}
	if len(params) == 0 {
		return text
	}

	pairs := lo.FlatMap(lo.Entries(params), func(e lo.Entry[string, interface{}], _ int) []string {
		return []string{"{{" + e.Key + "}}", fmt.Sprint(e.Value)}
	})
	return strings.NewReplacer(pairs...).Replace(text)
}

// Has reports whether the catalogue for lang defines key.
func (s *Service) Has(lang, key string) bool {
	_, ok := s.catalogues[lang][key]
	return ok
}

// Keys lists the keys of a catalogue in sorted order.
func (s *Service) Keys(lang string) []string {
	keys := lo.Keys(s.catalogues[lang])
	sort.Strings(keys)
	return keys
}
