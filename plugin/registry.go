package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/isdmx/challengebox/errkind"
)

// Registry maps language names and aliases to plugins. It is populated by
// NewRegistry and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	plugins map[string]LanguagePlugin
	names   []string
}

// NewRegistry registers plugins. Names and aliases are case-insensitive and
// must be unique across all plugins.
func NewRegistry(plugins ...LanguagePlugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]LanguagePlugin)}
	for _, p := range plugins {
		if err := r.register(p); err != nil {
			return nil, err
		}
	}
	if len(r.names) == 0 {
		return nil, errkind.Configf("no language plugins registered")
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) register(p LanguagePlugin) error {
	if p == nil {
		return errkind.Configf("nil language plugin")
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return errkind.Configf("language plugin without name")
	}

	keys := append([]string{name}, p.Aliases()...)
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return errkind.Configf("language plugin %s has an empty alias", name)
		}
		if existing, ok := r.plugins[key]; ok {
			return errkind.Configf("language %q already registered by %s", key, existing.Name())
		}
		r.plugins[key] = p
	}
	r.names = append(r.names, name)
	return nil
}

// Resolve returns the plugin registered under nameOrAlias.
func (r *Registry) Resolve(nameOrAlias string) (LanguagePlugin, error) {
	if p, ok := r.plugins[strings.ToLower(strings.TrimSpace(nameOrAlias))]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q (supported: %s)", errkind.ErrUnknownLanguage, nameOrAlias, strings.Join(r.names, ", "))
}

// Names returns the canonical language names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
