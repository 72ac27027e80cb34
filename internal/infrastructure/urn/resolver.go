// Package urn turns LinkedIn URNs into human readable labels.
//
// Labels come from, in order: the label cache, the embedded static
// dictionary, a remote targeting-entity lookup, a pattern label for known
// URN types and finally a label derived from the URN text itself.
package urn

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLookupTimeout bounds a single remote lookup.
	DefaultLookupTimeout = 5 * time.Second
	// DefaultCacheTTL is how long resolved labels stay in the shared cache.
	DefaultCacheTTL = 24 * time.Hour
	// MaxConcurrentLookups caps the resolutions ResolveMany runs at once.
	MaxConcurrentLookups = 8
)

//go:embed mappings.yaml
var mappingsYAML []byte

// EntityLookup finds the display name of a targeting entity.
// An empty name with a nil error means the entity is unknown.
type EntityLookup interface {
	LookupEntityName(ctx context.Context, facetType, id string) (string, error)
}

// Stats describes the resolver's local state.
type Stats struct {
	Size            int   `json:"size"`
	PendingRequests int64 `json:"pending_requests"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup enables remote lookups.
func WithLookup(l EntityLookup) Option {
	return func(r *Resolver) { r.lookup = l }
}

// WithCache shares resolved labels through c.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.shared = cache.Namespaced(c, "urn")
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLookupTimeout overrides the remote lookup timeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver implements analytics.URNResolver.
type Resolver struct {
	static  map[string]string
	lookup  EntityLookup
	shared  cache.Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	labels  map[string]string
	group   singleflight.Group
	pending atomic.Int64
}

var _ analytics.URNResolver = (*Resolver)(nil)

// NewResolver loads the embedded dictionary and applies opts.
func NewResolver(opts ...Option) (*Resolver, error) {
	static, err := loadMappings(mappingsYAML)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		static:  static,
		ttl:     DefaultCacheTTL,
		timeout: DefaultLookupTimeout,
		logger:  zap.NewNop(),
		labels:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func loadMappings(data []byte) (map[string]string, error) {
	var sections map[string]map[string]string
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode urn mappings: %w", err)
	}
	flat := make(map[string]string)
	for _, entries := range sections {
		for k, v := range entries {
			flat[k] = v
		}
	}
	return flat, nil
}

// Resolve returns a label for urn. It never fails.
func (r *Resolver) Resolve(ctx context.Context, urn string) string {
	if urn == "" {
		return urn
	}
	if label, ok := r.cached(ctx, urn); ok {
		return label
	}
	if label, ok := r.static[urn]; ok {
		r.store(ctx, urn, label)
		return label
	}

	v, _, _ := r.group.Do(urn, func() (any, error) {
		r.pending.Add(1)
		defer r.pending.Add(-1)
		label, final := r.resolveUncached(ctx, urn)
		if final {
			r.store(ctx, urn, label)
		}
		return label, nil
	})
	return v.(string)
}

// ResolveMany resolves every urn with at most MaxConcurrentLookups in
// flight. Duplicates are resolved once.
func (r *Resolver) ResolveMany(ctx context.Context, urns []string) map[string]string {
	unique := make([]string, 0, len(urns))
	seen := make(map[string]struct{}, len(urns))
	for _, u := range urns {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	labels := make([]string, len(unique))
	var g errgroup.Group
	g.SetLimit(MaxConcurrentLookups)
	for i, u := range unique {
		g.Go(func() error {
			labels[i] = r.Resolve(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(unique))
	for i, u := range unique {
		out[u] = labels[i]
	}
	return out
}

// Stats reports the number of locally cached labels and in-flight lookups.
func (r *Resolver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Size: len(r.labels), PendingRequests: r.pending.Load()}
}

// ClearCache drops every cached label, local and shared.
func (r *Resolver) ClearCache(ctx context.Context) error {
	r.mu.Lock()
	r.labels = make(map[string]string)
	r.mu.Unlock()
	if r.shared != nil {
		return r.shared.Clear(ctx)
	}
	return nil
}

func (r *Resolver) cached(ctx context.Context, urn string) (string, bool) {
	r.mu.RLock()
	label, ok := r.labels[urn]
	r.mu.RUnlock()
	if ok || r.shared == nil {
		return label, ok
	}
	data, ok, err := r.shared.Get(ctx, urn)
	if err != nil {
		r.logger.Debug("URN cache read failed", zap.String("urn", urn), zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	label = string(data)
	r.mu.Lock()
	r.labels[urn] = label
	r.mu.Unlock()
	return label, true
}

func (r *Resolver) store(ctx context.Context, urn, label string) {
	r.mu.Lock()
	r.labels[urn] = label
	r.mu.Unlock()
	if r.shared == nil {
		return
	}
	if err := r.shared.Set(ctx, urn, []byte(label), r.ttl); err != nil {
		r.logger.Debug("URN cache write failed", zap.String("urn", urn), zap.Error(err))
	}
}

// resolveUncached reports final=false when a remote lookup failed, so the
// stand-in label is not cached and the next call asks again.
func (r *Resolver) resolveUncached(ctx context.Context, urn string) (label string, final bool) {
	p := parse(urn)
	final = true
	if r.lookup != nil && p.facet != "" && p.id != "" {
		name, err := r.remote(ctx, urn, p)
		if name != "" {
			return name, true
		}
		final = err == nil
	}
	if label := patternLabel(p); label != "" {
		return label, final
	}
	return fallbackLabel(urn, p), final
}

func (r *Resolver) remote(ctx context.Context, urn string, p parsed) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	ctx, span := telemetry.StartClientSpan(ctx, "linkedin", "lookup_entity")
	defer span.End()

	name, err := r.lookup.LookupEntityName(ctx, p.facet, p.id)
	if err != nil {
		telemetry.RecordError(span, err)
		r.logger.Warn("URN lookup failed", zap.String("urn", urn), zap.Error(err))
		return "", err
	}
	return name, nil
}

// parsed is the decomposition of urn:li:<kind>:<id>.
type parsed struct {
	kind  string
	id    string
	facet string
	ok    bool
}

var lookupFacets = map[string]string{
	"title":             "TITLE",
	"industry":          "INDUSTRY",
	"organization":      "COMPANY",
	"organizationBrand": "COMPANY",
	"company":           "COMPANY",
	"geo":               "LOCATION",
	"skill":             "SKILL",
	"school":            "SCHOOL",
	"degree":            "DEGREE",
	"fieldOfStudy":      "FIELD_OF_STUDY",
}

func parse(urn string) parsed {
	parts := strings.SplitN(urn, ":", 4)
	if len(parts) < 4 || parts[0] != "urn" {
		return parsed{}
	}
	return parsed{
		kind:  parts[2],
		id:    parts[3],
		facet: lookupFacets[parts[2]],
		ok:    true,
	}
}

var patternPrefixes = map[string]string{
	"organization":      "Company",
	"organizationBrand": "Company",
	"company":           "Company",
	"title":             "Title",
	"industry":          "Industry",
	"skill":             "Skill",
	"school":            "School",
	"geo":               "Location",
}

func patternLabel(p parsed) string {
	if !p.ok || p.id == "" {
		return ""
	}
	if p.kind == "locale" {
		return "Language: " + strings.ReplaceAll(p.id, "_", "-")
	}
	prefix, ok := patternPrefixes[p.kind]
	if !ok || !isNumeric(p.id) {
		return ""
	}
	return prefix + " " + p.id
}

var titleCaser = cases.Title(language.English, cases.NoLower)

func fallbackLabel(urn string, p parsed) string {
	if p.ok && isNumeric(p.id) {
		return titleCaser.String(p.kind) + " " + p.id
	}
	if i := strings.LastIndex(urn, ":"); i >= 0 && i < len(urn)-1 {
		return urn[i+1:]
	}
	return urn
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
