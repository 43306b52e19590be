// Package i18n loads the dashboard label bundles. Labels live in yaml files
// per language; pt-BR is the product default.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage matches the shipped frontend default.
const DefaultLanguage = "pt-BR"

// SupportedLanguages are the bundles the dashboard ships.
var SupportedLanguages = []string{"pt-BR", "en-US"}

// Bundle holds the loaded label maps, keyed by language then label key.
type Bundle struct {
	mu     sync.RWMutex
	labels map[string]map[string]string
}

// Load reads <lang>.yaml for every supported language from dir. Missing files
// fall back to the built-in labels; a present file overrides them key by key.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{labels: make(map[string]map[string]string)}
	for _, lang := range SupportedLanguages {
		labels := builtinLabels(lang)

		path := filepath.Join(dir, lang+".yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			var fileLabels map[string]string
			if err := yaml.Unmarshal(data, &fileLabels); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			for k, v := range fileLabels {
				labels[k] = v
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		b.labels[lang] = labels
	}
	return b, nil
}

// Builtin returns a bundle with only the compiled-in labels.
func Builtin() *Bundle {
	b := &Bundle{labels: make(map[string]map[string]string)}
	for _, lang := range SupportedLanguages {
		b.labels[lang] = builtinLabels(lang)
	}
	return b
}

// Supported reports whether lang has a bundle.
func (b *Bundle) Supported(lang string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.labels[lang]
	return ok
}

// T resolves a label key for a language, falling back to the default language
// and finally to the key itself.
func (b *Bundle) T(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if labels, ok := b.labels[lang]; ok {
		if v, ok := labels[key]; ok {
			return v
		}
	}
	if labels, ok := b.labels[DefaultLanguage]; ok {
		if v, ok := labels[key]; ok {
			return v
		}
	}
	return key
}

// Labels returns a copy of the whole label map for a language, for clients
// that render everything themselves.
func (b *Bundle) Labels(lang string) map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	src, ok := b.labels[lang]
	if !ok {
		src = b.labels[DefaultLanguage]
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// builtinLabels are the labels the binary carries so the dashboard renders
// without any locale files on disk.
func builtinLabels(lang string) map[string]string {
	switch lang {
	case "en-US":
		return map[string]string{
			"status.active":      "Active",
			"status.inactive":    "Inactive",
			"status.maintenance": "Maintenance",
			"status.error":       "Error",
			"devices.all":        "All",
			"language.name":      "English (US)",
		}
	default:
		return map[string]string{
			"status.active":      "Ativo",
			"status.inactive":    "Inativo",
			"status.maintenance": "Manutenção",
			"status.error":       "Erro",
			"devices.all":        "Todos",
			"language.name":      "Português (Brasil)",
		}
	}
}
