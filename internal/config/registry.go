package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kestrelsoft/pse/pkg/grammar"
	"github.com/kestrelsoft/pse/pkg/vocab"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	tokenizer map[string]func(ProviderEntry) (vocab.Tokenizer, error)
	grammar   map[string]func(ProviderEntry) (grammar.Validator, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tokenizer: make(map[string]func(ProviderEntry) (vocab.Tokenizer, error)),
		grammar:   make(map[string]func(ProviderEntry) (grammar.Validator, error)),
	}
}

// RegisterTokenizer registers a tokenizer factory under name. Subsequent
// calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTokenizer(name string, factory func(ProviderEntry) (vocab.Tokenizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenizer[name] = factory
}

// RegisterGrammar registers a grammar validator factory under name.
func (r *Registry) RegisterGrammar(name string, factory func(ProviderEntry) (grammar.Validator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammar[name] = factory
}

// CreateTokenizer instantiates a tokenizer using the factory registered
// under entry.Name. Returns [ErrBackendNotRegistered] if none is registered.
func (r *Registry) CreateTokenizer(entry ProviderEntry) (vocab.Tokenizer, error) {
	r.mu.RLock()
	factory, ok := r.tokenizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tokenizer/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateGrammar instantiates a grammar validator using the factory
// registered under entry.Name.
func (r *Registry) CreateGrammar(entry ProviderEntry) (grammar.Validator, error) {
	r.mu.RLock()
	factory, ok := r.grammar[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: grammar/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(entry)
}
