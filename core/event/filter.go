package event

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
)

// Filter is a declarative event matcher. Every configured field narrows the
// match; unset fields pass. Filters are safe for concurrent use once built.
type Filter struct {
	eventTypes     []string
	sources        []string
	tags           []string
	payloadFields  map[string]any
	headerFields   map[string]any
	typePatterns   []*regexp.Regexp
	sourcePatterns []*regexp.Regexp
	minPriority    Priority
	routingKeys    []string
}

// FilterOption configures a Filter.
type FilterOption func(*filterConfig) error

type filterConfig struct {
	eventTypes     []string
	sources        []string
	tags           []string
	payloadFields  map[string]any
	headerFields   map[string]any
	typePatterns   []string
	sourcePatterns []string
	minPriority    Priority
	routingKeys    []string
}

// FilterEventTypes restricts matching to the given event types.
func FilterEventTypes(types ...string) FilterOption {
	return func(c *filterConfig) error {
		c.eventTypes = types
		return nil
	}
}

// FilterSources restricts matching to events from the given sources.
func FilterSources(sources ...string) FilterOption {
	return func(c *filterConfig) error {
		c.sources = sources
		return nil
	}
}

// FilterTags requires all given tags to be present on the event.
func FilterTags(tags ...string) FilterOption {
	return func(c *filterConfig) error {
		c.tags = tags
		return nil
	}
}

// FilterPayloadFields requires payload keys to be present with equal values.
// A missing key never matches.
func FilterPayloadFields(fields map[string]any) FilterOption {
	return func(c *filterConfig) error {
		c.payloadFields = fields
		return nil
	}
}

// FilterHeaderFields requires header keys to be present with equal values.
func FilterHeaderFields(fields map[string]any) FilterOption {
	return func(c *filterConfig) error {
		c.headerFields = fields
		return nil
	}
}

// FilterTypePatterns matches the event type against regex patterns.
// The filter passes when ANY pattern matches.
func FilterTypePatterns(patterns ...string) FilterOption {
	return func(c *filterConfig) error {
		c.typePatterns = patterns
		return nil
	}
}

// FilterSourcePatterns matches the event source against regex patterns.
// The filter passes when ANY pattern matches.
func FilterSourcePatterns(patterns ...string) FilterOption {
	return func(c *filterConfig) error {
		c.sourcePatterns = patterns
		return nil
	}
}

// FilterMinPriority requires the event priority ordinal to be at least the
// given level.
func FilterMinPriority(p Priority) FilterOption {
	return func(c *filterConfig) error {
		if !p.Valid() {
			return fmt.Errorf("invalid minimum priority %q", p)
		}
		c.minPriority = p
		return nil
	}
}

// FilterRoutingKeys requires the event to carry a routing key from the list.
func FilterRoutingKeys(keys ...string) FilterOption {
	return func(c *filterConfig) error {
		c.routingKeys = keys
		return nil
	}
}

// NewFilter builds a Filter from the given options, compiling any patterns.
// Returns ErrInvalidPattern for patterns that fail to compile.
func NewFilter(opts ...FilterOption) (*Filter, error) {
	cfg := &filterConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	f := &Filter{
		eventTypes:    cfg.eventTypes,
		sources:       cfg.sources,
		tags:          cfg.tags,
		payloadFields: cfg.payloadFields,
		headerFields:  cfg.headerFields,
		minPriority:   cfg.minPriority,
		routingKeys:   cfg.routingKeys,
	}

	var err error
	if f.typePatterns, err = compilePatterns(cfg.typePatterns); err != nil {
		return nil, err
	}
	if f.sourcePatterns, err = compilePatterns(cfg.sourcePatterns); err != nil {
		return nil, err
	}

	return f, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Matches reports whether the event passes every configured check.
func (f *Filter) Matches(evt *Event) bool {
	meta := evt.Metadata

	if len(f.eventTypes) > 0 && !slices.Contains(f.eventTypes, meta.EventType) {
		return false
	}

	if len(f.sources) > 0 && !slices.Contains(f.sources, meta.Source) {
		return false
	}

	for _, tag := range f.tags {
		if !slices.Contains(meta.Tags, tag) {
			return false
		}
	}

	// DeepEqual, not ==: JSON-decoded payloads hold slices and maps, which
	// panic under interface comparison.
	for key, want := range f.payloadFields {
		got, ok := evt.Payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}

	for key, want := range f.headerFields {
		got, ok := meta.Headers[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}

	if !matchesAny(f.typePatterns, meta.EventType) {
		return false
	}

	if !matchesAny(f.sourcePatterns, meta.Source) {
		return false
	}

	if f.minPriority != "" && meta.Priority.Ordinal() < f.minPriority.Ordinal() {
		return false
	}

	if len(f.routingKeys) > 0 {
		if meta.RoutingKey == "" || !slices.Contains(f.routingKeys, meta.RoutingKey) {
			return false
		}
	}

	return true
}

// matchesAny passes when no patterns are configured.
func matchesAny(patterns []*regexp.Regexp, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, re := range patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
