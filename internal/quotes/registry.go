package quotes

import (
	"fmt"
	"slices"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/model"
)

// DefaultPriority is the fallback order per market.
func DefaultPriority() map[model.Market][]string {
	return map[model.Market][]string{
		model.MarketA:  {"tencent", "netease", "sina", "eastmoney"},
		model.MarketHK: {"tencent", "yahoo"},
		model.MarketUS: {"yahoo", "tencent"},
	}
}

type registered struct {
	desc model.SourceDescriptor
	src  collector.Source
}

// Registry holds the immutable per-market source order.
type Registry struct {
	byName map[string]collector.Source
	order  map[model.Market][]registered
}

// NewRegistry validates priority against the given sources. Every name must
// be registered and must support the market it is listed under.
func NewRegistry(sources []collector.Source, priority map[model.Market][]string) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]collector.Source, len(sources)),
		order:  make(map[model.Market][]registered, len(priority)),
	}
	for _, s := range sources {
		if _, dup := r.byName[s.Name()]; dup {
			return nil, fmt.Errorf("source %q registered twice", s.Name())
		}
		r.byName[s.Name()] = s
	}

	for market, names := range priority {
		if !market.Valid() {
			return nil, fmt.Errorf("priority for %q: %w", market, ErrUnknownMarket)
		}
		for i, name := range names {
			src, ok := r.byName[name]
			if !ok {
				return nil, fmt.Errorf("priority %s[%d]: unknown source %q", market, i, name)
			}
			if !collector.Supports(src, market) {
				return nil, fmt.Errorf("priority %s[%d]: source %q does not serve market %s", market, i, name, market)
			}
			r.order[market] = append(r.order[market], registered{
				desc: model.SourceDescriptor{Name: name, Markets: slices.Clone(src.Markets()), Priority: i},
				src:  src,
			})
		}
	}
	return r, nil
}

// Descriptors returns the ordered descriptors for market m.
func (r *Registry) Descriptors(m model.Market) []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, 0, len(r.order[m]))
	for _, e := range r.order[m] {
		out = append(out, e.desc)
	}
	return out
}

func (r *Registry) sources(m model.Market) []registered {
	return r.order[m]
}

// Names lists every registered source name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
