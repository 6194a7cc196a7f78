package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const suggestionTimeout = 5 * time.Second

// SuggestionCache keeps recent suggestion answers keyed by profile, limit and
// prefix. It is shared by every session and safe for concurrent use.
type SuggestionCache struct {
	cache *ttlcache.Cache[string, []schema.CommandSuggestion]
}

// NewSuggestionCache creates a cache whose entries expire after ttl. A
// non-positive ttl returns nil, which disables caching.
func NewSuggestionCache(ttl time.Duration) *SuggestionCache {
	if ttl <= 0 {
		return nil
	}
	c := ttlcache.New[string, []schema.CommandSuggestion](
		ttlcache.WithTTL[string, []schema.CommandSuggestion](ttl),
		ttlcache.WithDisableTouchOnHit[string, []schema.CommandSuggestion](),
	)
	go c.Start()
	return &SuggestionCache{cache: c}
}

// Close stops the expiration loop.
func (s *SuggestionCache) Close() {
	if s == nil {
		return
	}
	s.cache.Stop()
}

func suggestionKey(profile schema.ProfileID, limit int, prefix string) string {
	return string(profile) + "\x00" + strconv.Itoa(limit) + "\x00" + prefix
}

func (s *SuggestionCache) get(profile schema.ProfileID, limit int, prefix string) ([]schema.CommandSuggestion, bool) {
	if s == nil {
		return nil, false
	}
	item := s.cache.Get(suggestionKey(profile, limit, prefix))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *SuggestionCache) set(profile schema.ProfileID, limit int, prefix string, value []schema.CommandSuggestion) {
	if s == nil {
		return
	}
	s.cache.Set(suggestionKey(profile, limit, prefix), value, ttlcache.DefaultTTL)
}

// Invalidate drops every entry for profile.
func (s *SuggestionCache) Invalidate(profile schema.ProfileID) {
	if s == nil {
		return
	}
	prefix := string(profile) + "\x00"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

// SuggestionClient fetches suggestions for one session. Inline requests are
// debounced; every response is checked against the newest request of its
// kind so a slow answer never overwrites a newer one.
type SuggestionClient struct {
	ctx    context.Context
	disp   Dispatcher
	source SuggestionSource
	cache  *SuggestionCache
	log    pslog.Logger

	debounce      time.Duration
	inlineLimit   int
	dropdownLimit int

	inlineGen   uint64
	dropdownGen uint64
	timer       Timer
}

// NewSuggestionClient builds a client. ctx bounds every query.
func NewSuggestionClient(ctx context.Context, disp Dispatcher, source SuggestionSource, cache *SuggestionCache, cfg schema.EngineConfig) *SuggestionClient {
	return &SuggestionClient{
		ctx:           ctx,
		disp:          disp,
		source:        source,
		cache:         cache,
		log:           pslog.Ctx(ctx),
		debounce:      cfg.InlineDebounce,
		inlineLimit:   cfg.InlineLimit,
		dropdownLimit: cfg.DropdownLimit,
	}
}

// ScheduleInline restarts the debounce timer for an inline query. When it
// fires and the answer arrives, deliver is called on the loop only if no newer
// inline request was made and valid still holds.
func (c *SuggestionClient) ScheduleInline(profile schema.ProfileID, prefix string, valid func() bool, deliver func([]schema.CommandSuggestion)) {
	c.CancelInline()
	gen := c.inlineGen
	c.timer = c.disp.AfterFunc(c.debounce, func() {
		if gen != c.inlineGen {
			return
		}
		c.query(profile, prefix, c.inlineLimit, func(set []schema.CommandSuggestion) {
			if gen != c.inlineGen || !valid() {
				return
			}
			deliver(set)
		})
	})
}

// CancelInline discards any pending or in-flight inline request.
func (c *SuggestionClient) CancelInline() {
	c.inlineGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// FetchDropdown queries immediately with the dropdown limit.
func (c *SuggestionClient) FetchDropdown(profile schema.ProfileID, prefix string, valid func() bool, deliver func([]schema.CommandSuggestion)) {
	c.dropdownGen++
	gen := c.dropdownGen
	c.query(profile, prefix, c.dropdownLimit, func(set []schema.CommandSuggestion) {
		if gen != c.dropdownGen || !valid() {
			return
		}
		deliver(set)
	})
}

// CancelDropdown discards an in-flight dropdown request.
func (c *SuggestionClient) CancelDropdown() {
	c.dropdownGen++
}

// Invalidate drops cached answers for profile.
func (c *SuggestionClient) Invalidate(profile schema.ProfileID) {
	c.cache.Invalidate(profile)
}

func (c *SuggestionClient) query(profile schema.ProfileID, prefix string, limit int, done func([]schema.CommandSuggestion)) {
	if set, ok := c.cache.get(profile, limit, prefix); ok {
		done(set)
		return
	}
	if c.source == nil {
		done(nil)
		return
	}
	c.disp.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, suggestionTimeout)
		set, err := c.source.Suggestions(ctx, profile, prefix, limit)
		cancel()
		if err != nil {
			err = fmt.Errorf("%w: %w", schema.ErrSuggestionFetch, err)
		}
		c.disp.Post(func() {
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					c.log.Warn("suggestion fetch failed", "prefix_len", len(prefix), "limit", limit, "err", err)
				}
				done(nil)
				return
			}
			if len(set) > limit {
				set = set[:limit]
			}
			c.cache.set(profile, limit, prefix, set)
			done(set)
		})
	})
}
