package urn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	names   map[string]string
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeLookup) LookupEntityName(ctx context.Context, facetType, id string) (string, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.names[facetType+":"+id], nil
}

func TestResolver_Resolve(t *testing.T) {
	lookup := &fakeLookup{names: map[string]string{"TITLE:999": "Growth Hacker"}}
	r, err := NewResolver(WithLookup(lookup))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		urn  string
		want string
	}{
		{"urn:li:title:117", "Chief Executive Officer"},
		{"urn:li:seniority:3", "Senior level"},
		{"urn:li:organization:1035", "Microsoft"},
		{"urn:li:industry:6", "Internet"},
		{"urn:li:title:999", "Growth Hacker"},
		{"urn:li:organization:424242", "Company 424242"},
		{"urn:li:organizationBrand:7", "Company 7"},
		{"urn:li:geo:1", "Location 1"},
		{"urn:li:locale:pt_BR", "Language: pt-BR"},
		{"urn:li:memberBehavior:42", "MemberBehavior 42"},
		{"urn:li:audience:abc", "abc"},
		{"not-a-urn", "not-a-urn"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.urn, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(ctx, tt.urn))
		})
	}
}

func TestResolver_LookupFailureFallsBack(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("upstream down")}
	r, err := NewResolver(WithLookup(lookup))
	require.NoError(t, err)

	assert.Equal(t, "Industry 77777", r.Resolve(context.Background(), "urn:li:industry:77777"))
	assert.Equal(t, int32(1), lookup.calls.Load())
	assert.Equal(t, 0, r.Stats().Size, "a stand-in label after a failed lookup is not cached")

	lookup.err = nil
	lookup.names = map[string]string{"INDUSTRY:77777": "Quantum Computing"}
	assert.Equal(t, "Quantum Computing", r.Resolve(context.Background(), "urn:li:industry:77777"))
	assert.Equal(t, int32(2), lookup.calls.Load())

	t.Run("unknown entity is cached", func(t *testing.T) {
		unknown := &fakeLookup{names: map[string]string{}}
		r, err := NewResolver(WithLookup(unknown))
		require.NoError(t, err)

		assert.Equal(t, "Industry 88888", r.Resolve(context.Background(), "urn:li:industry:88888"))
		assert.Equal(t, "Industry 88888", r.Resolve(context.Background(), "urn:li:industry:88888"))
		assert.Equal(t, int32(1), unknown.calls.Load())
	})
}

func TestResolver_LookupTimeout(t *testing.T) {
	lookup := &fakeLookup{release: make(chan struct{})}
	r, err := NewResolver(WithLookup(lookup), WithLookupTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	assert.Equal(t, "Skill 5", r.Resolve(context.Background(), "urn:li:skill:5"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolver_DeduplicatesConcurrentLookups(t *testing.T) {
	lookup := &fakeLookup{
		names:   map[string]string{"SCHOOL:12": "MIT"},
		release: make(chan struct{}),
	}
	r, err := NewResolver(WithLookup(lookup))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "urn:li:school:12")
		}(i)
	}

	require.Eventually(t, func() bool { return r.Stats().PendingRequests == 1 }, time.Second, 5*time.Millisecond)
	close(lookup.release)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, "MIT", got)
	}
	assert.LessOrEqual(t, lookup.calls.Load(), int32(2))
	assert.Equal(t, int64(0), r.Stats().PendingRequests)

	r.Resolve(context.Background(), "urn:li:school:12")
	assert.LessOrEqual(t, lookup.calls.Load(), int32(2), "cached label must not hit the lookup")
}

func TestResolver_SharedCache(t *testing.T) {
	backing := cache.NewInMemoryCache(0)
	defer backing.Close()
	ctx := context.Background()

	lookup := &fakeLookup{names: map[string]string{"SKILL:8": "Go"}}
	first, err := NewResolver(WithLookup(lookup), WithCache(backing, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Go", first.Resolve(ctx, "urn:li:skill:8"))

	second, err := NewResolver(WithCache(backing, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Go", second.Resolve(ctx, "urn:li:skill:8"))
	assert.Equal(t, int32(1), lookup.calls.Load())

	require.NoError(t, second.ClearCache(ctx))
	assert.Equal(t, 0, second.Stats().Size)
	assert.Equal(t, "Skill 8", second.Resolve(ctx, "urn:li:skill:8"))
}

func TestResolver_ResolveMany(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)

	got := r.ResolveMany(context.Background(), []string{
		"urn:li:title:117", "urn:li:title:117", "urn:li:geo:103644278",
	})
	assert.Equal(t, map[string]string{
		"urn:li:title:117":     "Chief Executive Officer",
		"urn:li:geo:103644278": "United States",
	}, got)
	assert.Equal(t, 2, r.Stats().Size)
}

// countingLookup holds every lookup until release is closed and records the
// highest number in flight.
type countingLookup struct {
	release  chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32
}

func (c *countingLookup) LookupEntityName(ctx context.Context, _, id string) (string, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-c.release:
		return "Skill " + id + " name", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestResolver_ResolveManyBoundsLookups(t *testing.T) {
	lookup := &countingLookup{release: make(chan struct{})}
	r, err := NewResolver(WithLookup(lookup))
	require.NoError(t, err)

	urns := make([]string, 3*MaxConcurrentLookups)
	for i := range urns {
		urns[i] = fmt.Sprintf("urn:li:skill:%d", 1000+i)
	}

	done := make(chan map[string]string)
	go func() { done <- r.ResolveMany(context.Background(), urns) }()

	require.Eventually(t, func() bool {
		return lookup.inflight.Load() == MaxConcurrentLookups
	}, time.Second, 5*time.Millisecond)
	close(lookup.release)

	got := <-done
	assert.Len(t, got, len(urns))
	assert.Equal(t, "Skill 1000 name", got["urn:li:skill:1000"])
	assert.Equal(t, int32(MaxConcurrentLookups), lookup.peak.Load())
}

func TestFacetDisplayName(t *testing.T) {
	tests := map[analytics.FacetType]string{
		analytics.FacetTitles:        "Job Titles",
		analytics.FacetEmployers:     "Companies",
		analytics.FacetExperience:    "Experience Level",
		analytics.FacetFieldsOfStudy: "Fields of Study",
		"memberBehaviors":            "Member Behaviors",
		"x":                          "X",
	}
	for facet, want := range tests {
		assert.Equal(t, want, FacetDisplayName(facet), facet)
	}
}

func TestResolver_ProcessTargetingCriteria(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)

	raw := []byte(`{
		"include": {"and": [
			{"or": {"urn:li:adTargetingFacet:titles": ["urn:li:title:117"]}},
			{"or": {"urn:li:adTargetingFacet:employers": ["urn:li:organization:1035", "urn:li:organization:5"]}}
		]},
		"exclude": {"or": {"urn:li:adTargetingFacet:seniorities": ["urn:li:seniority:3"]}}
	}`)

	tc, resolved, err := r.ProcessTargetingCriteria(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, tc.Include, 2)

	want := ResolvedTargeting{
		Include: []ResolvedFacet{
			{FacetType: "Job Titles", FacetURN: "urn:li:adTargetingFacet:titles", Values: []ResolvedValue{
				{URN: "urn:li:title:117", Decoded: "Chief Executive Officer"},
			}},
			{FacetType: "Companies", FacetURN: "urn:li:adTargetingFacet:employers", Values: []ResolvedValue{
				{URN: "urn:li:organization:1035", Decoded: "Microsoft"},
				{URN: "urn:li:organization:5", Decoded: "Company 5"},
			}},
		},
		Exclude: []ResolvedFacet{
			{FacetType: "Seniority Level", FacetURN: "urn:li:adTargetingFacet:seniorities", Values: []ResolvedValue{
				{URN: "urn:li:seniority:3", Decoded: "Senior level"},
			}},
		},
	}
	if diff := cmp.Diff(want, resolved); diff != "" {
		t.Errorf("resolved targeting mismatch (-want +got):\n%s", diff)
	}

	_, _, err = r.ProcessTargetingCriteria(context.Background(), []byte("{"))
	assert.Error(t, err)
}
