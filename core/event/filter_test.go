package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstreamhq/relay/core/event"
)

func TestNewFilter_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := event.NewFilter(event.FilterTypePatterns("[unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, event.ErrInvalidPattern)
}

func TestNewFilter_InvalidMinPriority(t *testing.T) {
	t.Parallel()

	_, err := event.NewFilter(event.FilterMinPriority(event.Priority("urgent")))
	require.Error(t, err)
}

func TestFilter_EmptyMatchesEverything(t *testing.T) {
	t.Parallel()

	f, err := event.NewFilter()
	require.NoError(t, err)

	assert.True(t, f.Matches(event.New("anything.at.all", nil)))
	assert.True(t, f.Matches(event.New("", nil)))
}

func TestFilter_Matches(t *testing.T) {
	t.Parallel()

	evt := event.New("payment.captured",
		map[string]any{"amount": "99.90", "region": "eu"},
		event.WithSource("billing-service"),
		event.WithPriority(event.PriorityHigh),
		event.WithRoutingKey("eu-west"),
		event.WithHeaders(map[string]any{"tenant": "acme"}),
		event.WithTags("money", "audit"),
	)

	tests := []struct {
		name string
		opts []event.FilterOption
		want bool
	}{
		{"matching event type", []event.FilterOption{event.FilterEventTypes("payment.captured")}, true},
		{"non-matching event type", []event.FilterOption{event.FilterEventTypes("payment.refunded")}, false},
		{"one of several event types", []event.FilterOption{event.FilterEventTypes("payment.refunded", "payment.captured")}, true},
		{"matching source", []event.FilterOption{event.FilterSources("billing-service")}, true},
		{"non-matching source", []event.FilterOption{event.FilterSources("auth-service")}, false},
		{"all required tags present", []event.FilterOption{event.FilterTags("money", "audit")}, true},
		{"missing required tag", []event.FilterOption{event.FilterTags("money", "gdpr")}, false},
		{"payload field equality", []event.FilterOption{event.FilterPayloadFields(map[string]any{"region": "eu"})}, true},
		{"payload field mismatch", []event.FilterOption{event.FilterPayloadFields(map[string]any{"region": "us"})}, false},
		{"payload field missing", []event.FilterOption{event.FilterPayloadFields(map[string]any{"missing": "x"})}, false},
		{"header field equality", []event.FilterOption{event.FilterHeaderFields(map[string]any{"tenant": "acme"})}, true},
		{"header field mismatch", []event.FilterOption{event.FilterHeaderFields(map[string]any{"tenant": "other"})}, false},
		{"type pattern match", []event.FilterOption{event.FilterTypePatterns(`^payment\.`)}, true},
		{"type pattern any-of", []event.FilterOption{event.FilterTypePatterns(`^order\.`, `^payment\.`)}, true},
		{"type pattern no match", []event.FilterOption{event.FilterTypePatterns(`^order\.`)}, false},
		{"source pattern match", []event.FilterOption{event.FilterSourcePatterns(`-service$`)}, true},
		{"min priority below event", []event.FilterOption{event.FilterMinPriority(event.PriorityNormal)}, true},
		{"min priority equal", []event.FilterOption{event.FilterMinPriority(event.PriorityHigh)}, true},
		{"min priority above event", []event.FilterOption{event.FilterMinPriority(event.PriorityCritical)}, false},
		{"matching routing key", []event.FilterOption{event.FilterRoutingKeys("eu-west", "eu-central")}, true},
		{"non-matching routing key", []event.FilterOption{event.FilterRoutingKeys("us-east")}, false},
		{
			"all conditions conjoined",
			[]event.FilterOption{
				event.FilterEventTypes("payment.captured"),
				event.FilterSources("billing-service"),
				event.FilterMinPriority(event.PriorityHigh),
				event.FilterTags("money"),
			},
			true,
		},
		{
			"one failing condition fails the conjunction",
			[]event.FilterOption{
				event.FilterEventTypes("payment.captured"),
				event.FilterSources("auth-service"),
			},
			false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := event.NewFilter(tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(evt))
		})
	}
}

func TestFilter_NonComparablePayloadValues(t *testing.T) {
	t.Parallel()

	// JSON-decoded payloads hold slices and nested maps; matching on them
	// must compare structurally instead of panicking on interface equality.
	evt := event.New("batch.created", map[string]any{
		"ids":  []any{"a", "b"},
		"meta": map[string]any{"region": "eu"},
	})

	t.Run("equal slice matches", func(t *testing.T) {
		t.Parallel()

		f, err := event.NewFilter(event.FilterPayloadFields(map[string]any{"ids": []any{"a", "b"}}))
		require.NoError(t, err)
		assert.True(t, f.Matches(evt))
	})

	t.Run("different slice does not match", func(t *testing.T) {
		t.Parallel()

		f, err := event.NewFilter(event.FilterPayloadFields(map[string]any{"ids": []any{"a", "c"}}))
		require.NoError(t, err)
		assert.False(t, f.Matches(evt))
	})

	t.Run("nested map matches", func(t *testing.T) {
		t.Parallel()

		f, err := event.NewFilter(event.FilterPayloadFields(map[string]any{"meta": map[string]any{"region": "eu"}}))
		require.NoError(t, err)
		assert.True(t, f.Matches(evt))
	})

	t.Run("non-comparable header values", func(t *testing.T) {
		t.Parallel()

		withHeaders := event.New("batch.created", nil,
			event.WithHeaders(map[string]any{"shards": []any{1.0, 2.0}}))

		f, err := event.NewFilter(event.FilterHeaderFields(map[string]any{"shards": []any{1.0, 2.0}}))
		require.NoError(t, err)
		assert.True(t, f.Matches(withHeaders))
	})
}

func TestFilter_RoutingKeyRequiredWhenConfigured(t *testing.T) {
	t.Parallel()

	f, err := event.NewFilter(event.FilterRoutingKeys("eu-west"))
	require.NoError(t, err)

	// Event without a routing key never matches a routing-key filter.
	assert.False(t, f.Matches(event.New("test.event", nil)))
}
