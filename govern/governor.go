// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package govern

import (
	"log/slog"
	"sync"
	"time"
)

// Verdict is the outcome of a reservation attempt.
type Verdict int

const (
	// VerdictPermit admits the call immediately.
	VerdictPermit Verdict = iota + 1
	// VerdictWait defers the call; Decision.Wait holds the suggested delay.
	VerdictWait
	// VerdictReject refuses the call outright. Returned only when the
	// binding constraint cannot be waited out, i.e. the daily cost ceiling.
	VerdictReject
)

// Decision is the result of Reserve.
type Decision struct {
	Verdict Verdict
	Wait    time.Duration
	Reason  string
}

// Limits configures the governor's ceilings. A zero or negative value
// disables that ceiling.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	TokensPerMinute   int
	DailyCostCeiling  float64
}

// DefaultLimits returns conservative ceilings suitable for a metered
// embedding API on a free or low tier.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		TokensPerMinute:   150000,
		DailyCostCeiling:  1.0,
	}
}

// warnFraction of the daily cost ceiling at which a warning is logged.
const warnFraction = 0.8

type entry struct {
	at       time.Time
	requests int
	tokens   int
	cost     float64
}

// window is a sliding time span over recorded usage. Entries older than the
// span are dropped lazily on each access.
type window struct {
	span    time.Duration
	entries []entry
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.entries) && !w.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

func (w *window) requests() int {
	total := 0
	for _, e := range w.entries {
		total += e.requests
	}
	return total
}

func (w *window) tokens() int {
	total := 0
	for _, e := range w.entries {
		total += e.tokens
	}
	return total
}

func (w *window) cost() float64 {
	total := 0.0
	for _, e := range w.entries {
		total += e.cost
	}
	return total
}

// untilOldestExpires returns how long until the window's oldest entry ages
// out, which is the minimum wait that can change the window's admission
// answer.
func (w *window) untilOldestExpires(now time.Time) time.Duration {
	if len(w.entries) == 0 {
		return 0
	}
	return w.entries[0].at.Add(w.span).Sub(now)
}

// Governor admits or defers embedding calls against sliding request, token
// and cost ceilings. Reservations never consume budget: usage is recorded
// only after a successful remote call, with actual figures, so overestimates
// never permanently waste budget.
//
// State is process-local and rebuilt from zero on restart. Briefly
// under-counting after a crash is acceptable; over-counting never happens.
type Governor struct {
	mu     sync.Mutex
	limits Limits
	minute window
	hour   window
	day    window
	now    func() time.Time

	costWarned bool
	logger     *slog.Logger
}

// Option is a functional option for configuring a Governor.
type Option func(*Governor)

// WithClock injects a time source, used by tests for deterministic window
// behavior.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// New creates a Governor with the given ceilings.
func New(limits Limits, opts ...Option) *Governor {
	g := &Governor{
		limits: limits,
		minute: window{span: time.Minute},
		hour:   window{span: time.Hour},
		day:    window{span: 24 * time.Hour},
		now:    time.Now,
		logger: slog.Default().With("component", "governor"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetLimits replaces the governor's ceilings. Recorded usage is untouched,
// so tightening a limit takes effect against history already in the windows.
func (g *Governor) SetLimits(limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
}

// Reserve asks whether a call with the given estimated figures may proceed.
// It returns Permit, Wait with a suggested delay after which the same
// reservation should succeed, or Reject when the daily cost ceiling would be
// exceeded. Reserve itself never consumes budget.
func (g *Governor) Reserve(requests, tokens int, cost float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.minute.prune(now)
	g.hour.prune(now)
	g.day.prune(now)

	// The cost ceiling binds for the rest of the day, so waiting it out is
	// not productive. Reject and let the caller suspend embedding work.
	if g.limits.DailyCostCeiling > 0 && g.day.cost()+cost > g.limits.DailyCostCeiling {
		return Decision{Verdict: VerdictReject, Reason: "daily cost ceiling exceeded"}
	}

	var wait time.Duration
	reason := ""
	bind := func(w *window, r string) {
		if d := w.untilOldestExpires(now); d > wait {
			wait = d
			reason = r
		}
	}

	if g.limits.RequestsPerMinute > 0 && g.minute.requests()+requests > g.limits.RequestsPerMinute {
		bind(&g.minute, "per-minute request limit")
	}
	if g.limits.RequestsPerHour > 0 && g.hour.requests()+requests > g.limits.RequestsPerHour {
		bind(&g.hour, "per-hour request limit")
	}
	if g.limits.RequestsPerDay > 0 && g.day.requests()+requests > g.limits.RequestsPerDay {
		bind(&g.day, "per-day request limit")
	}
	if g.limits.TokensPerMinute > 0 && g.minute.tokens()+tokens > g.limits.TokensPerMinute {
		bind(&g.minute, "per-minute token limit")
	}

	if wait > 0 {
		return Decision{Verdict: VerdictWait, Wait: wait, Reason: reason}
	}
	return Decision{Verdict: VerdictPermit}
}

// Record registers actual usage after a successful remote call. Never call
// it for failed attempts.
func (g *Governor) Record(requests, tokens int, cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.minute.prune(now)
	g.hour.prune(now)
	g.day.prune(now)

	e := entry{at: now, requests: requests, tokens: tokens, cost: cost}
	g.minute.entries = append(g.minute.entries, e)
	g.hour.entries = append(g.hour.entries, e)
	g.day.entries = append(g.day.entries, e)

	if g.limits.DailyCostCeiling > 0 {
		accrued := g.day.cost()
		if accrued >= g.limits.DailyCostCeiling*warnFraction {
			if !g.costWarned {
				g.costWarned = true
				g.logger.Warn("daily embedding cost approaching ceiling",
					"accrued", accrued,
					"ceiling", g.limits.DailyCostCeiling)
			}
		} else {
			g.costWarned = false
		}
	}
}

// Snapshot is a point-in-time view of recorded usage, for stats reporting.
type Snapshot struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsLastDay    int
	TokensLastMinute   int
	CostLastDay        float64
}

// Usage returns the current recorded usage across all windows.
func (g *Governor) Usage() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.minute.prune(now)
	g.hour.prune(now)
	g.day.prune(now)

	return Snapshot{
		RequestsLastMinute: g.minute.requests(),
		RequestsLastHour:   g.hour.requests(),
		RequestsLastDay:    g.day.requests(),
		TokensLastMinute:   g.minute.tokens(),
		CostLastDay:        g.day.cost(),
	}
}
