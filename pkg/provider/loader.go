package provider

import (
	"errors"
	goplugin "plugin"
)

// Loader resolves provider binaries into Provider implementations.
type Loader interface {
	Load(path string) (Provider, error)
}

// GoPluginLoader uses the Go standard library plugin mechanism to load
// out-of-tree proving backends.
type GoPluginLoader struct{}

// Load opens the shared object and searches for a `Provider` symbol
// implementing the Provider interface.
func (GoPluginLoader) Load(path string) (Provider, error) {
	if path == "" {
		return nil, errors.New("provider path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Provider")
	if err != nil {
		return nil, err
	}
	switch p := symbol.(type) {
	case Provider:
		return p, nil
	case *Provider:
		if p == nil {
			return nil, errors.New("provider symbol is nil")
		}
		return *p, nil
	case func() Provider:
		return p(), nil
	default:
		return nil, errors.New("provider symbol must implement provider.Provider")
	}
}
