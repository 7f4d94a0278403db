package convcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"pawdesk/app/config"
	"pawdesk/app/service/tools"

	"github.com/samber/do"
)

type entry struct {
	value     *tools.Result
	writtenAt time.Time
	ttl       time.Duration
}

type space struct {
	entries     map[string]entry
	lastTouched time.Time
}

type spaceKey struct {
	tenantID       string
	conversationID string
}

// Service caches results of read-only tool calls, one key space per
// (tenant, conversation). Freshness is per entry: every tool brings its own
// TTL. A miss is never an error.
type Service struct {
	mu     sync.RWMutex
	spaces map[spaceKey]*space

	retention     time.Duration
	sweepInterval time.Duration

	now func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		spaces:        make(map[spaceKey]*space),
		retention:     cfg.Orchestrator.SweepRetention,
		sweepInterval: cfg.Orchestrator.SweepInterval,
		now:           time.Now,
	}, nil
}

// NewWithOptions constructs a cache without the DI container. Tests use it.
func NewWithOptions(retention time.Duration) *Service {
	return &Service{
		spaces:        make(map[spaceKey]*space),
		retention:     retention,
		sweepInterval: time.Minute,
		now:           time.Now,
	}
}

// Key derives the cache key for one call: the tool name plus the declared
// argument subset (or every argument when no subset is declared), in a
// canonical order.
func Key(toolName string, args map[string]any, fields []string) string {
	if len(fields) == 0 {
		fields = make([]string, 0, len(args))
		for f := range args {
			fields = append(fields, f)
		}
	} else {
		// The caller's slice is shared spec data; sort a copy.
		fields = append([]string(nil), fields...)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(toolName)
	for _, f := range fields {
		v, ok := args[f]
		if !ok {
			continue
		}
		encoded, _ := json.Marshal(v)
		fmt.Fprintf(&b, "|%s=%s", f, encoded)
	}

	return b.String()
}

func (s *Service) Get(tenantID, conversationID, key string) (*tools.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.spaces[spaceKey{tenantID, conversationID}]
	if !ok {
		return nil, false
	}

	sp.lastTouched = s.now()

	e, ok := sp.entries[key]
	if !ok {
		return nil, false
	}

	if s.now().Sub(e.writtenAt) >= e.ttl {
		delete(sp.entries, key)
		return nil, false
	}

	return e.value, true
}

func (s *Service) Set(tenantID, conversationID, key string, value *tools.Result, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := spaceKey{tenantID, conversationID}
	sp, ok := s.spaces[k]
	if !ok {
		sp = &space{entries: make(map[string]entry)}
		s.spaces[k] = sp
	}

	now := s.now()
	sp.lastTouched = now
	sp.entries[key] = entry{
		value:     value,
		writtenAt: now,
		ttl:       ttl,
	}
}

// Clear drops every cached entry of one conversation. Called after a
// mutating tool succeeds so stale reads cannot contradict the new state.
func (s *Service) Clear(tenantID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.spaces, spaceKey{tenantID, conversationID})
}

// Sweep drops expired entries and reclaims key spaces that are empty or
// untouched beyond the retention window.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, sp := range s.spaces {
		for key, e := range sp.entries {
			if now.Sub(e.writtenAt) >= e.ttl {
				delete(sp.entries, key)
			}
		}
		if len(sp.entries) == 0 || now.Sub(sp.lastTouched) > s.retention {
			delete(s.spaces, k)
			removed++
		}
	}

	return removed
}

// RunSweepLoop periodically reclaims idle caches until ctx is done.
func (s *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				slog.Debug("Swept idle conversation caches", "removed", removed)
			}
		}
	}
}
