package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/studylens/pkg/provider/embeddings"
	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
	"github.com/MrWong99/studylens/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name → constructor table for one provider kind.
type factories[P any] struct {
	kind   string
	byName map[string]Factory[P]
}

func newFactories[P any](kind string) factories[P] {
	return factories[P]{kind: kind, byName: make(map[string]Factory[P])}
}

// build runs the factory for entry.Name. Factory errors are prefixed with the
// kind and name so a failing fallback entry is identifiable in the log.
func (f factories[P]) build(mu *sync.RWMutex, entry ProviderEntry) (P, error) {
	mu.RLock()
	factory, ok := f.byName[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return p, fmt.Errorf("config: %s/%s: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[P]) names() []string {
	return slices.Sorted(maps.Keys(f.byName))
}

// Registry maps provider names to constructors for each provider slot. It is
// safe for concurrent use. Registering a name twice replaces the first
// factory.
type Registry struct {
	mu         sync.RWMutex
	ocr        factories[ocr.Provider]
	llm        factories[llm.Provider]
	stt        factories[stt.Provider]
	embeddings factories[embeddings.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		ocr:        newFactories[ocr.Provider]("ocr"),
		llm:        newFactories[llm.Provider]("llm"),
		stt:        newFactories[stt.Provider]("stt"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
	}
}

func (r *Registry) RegisterOCR(name string, f Factory[ocr.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocr.byName[name] = f
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byName[name] = f
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.byName[name] = f
}

func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.byName[name] = f
}

// CreateOCR builds the OCR provider named by entry.Name.
func (r *Registry) CreateOCR(entry ProviderEntry) (ocr.Provider, error) {
	return r.ocr.build(&r.mu, entry)
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.build(&r.mu, entry)
}

// CreateSTT builds the STT provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.build(&r.mu, entry)
}

// CreateEmbeddings builds the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.build(&r.mu, entry)
}

// Names returns the sorted provider names registered for kind ("ocr", "llm",
// "stt" or "embeddings"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.ocr.kind:
		return r.ocr.names()
	case r.llm.kind:
		return r.llm.names()
	case r.stt.kind:
		return r.stt.names()
	case r.embeddings.kind:
		return r.embeddings.names()
	}
	return nil
}
