package ledger

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one recorded unit of spend, scoped to a run or a task id.
type Entry struct {
	ScopeID    string    `json:"scope_id"`
	TokensUsed int       `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Total is the aggregate spend for one scope.
type Total struct {
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// Ledger is an append-only, concurrency-safe cost accumulator. Entries are
// recorded under a scope id (a run id or a task id) and never removed, so
// totals are monotonically non-decreasing.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	totals  map[string]Total

	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		totals: make(map[string]Total),
		logger: logger.With(zap.String("component", "cost_ledger")),
	}
}

// Record appends spend under the given scope. Negative values are clamped to
// zero so a bad caller can never shrink a total.
func (l *Ledger) Record(scopeID string, tokens int, costUSD float64) {
	if tokens < 0 {
		tokens = 0
	}
	if costUSD < 0 {
		costUSD = 0
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		ScopeID:    scopeID,
		TokensUsed: tokens,
		CostUSD:    costUSD,
		RecordedAt: time.Now(),
	})
	t := l.totals[scopeID]
	t.TokensUsed += tokens
	t.CostUSD += costUSD
	l.totals[scopeID] = t
	l.mu.Unlock()

	l.logger.Debug("cost recorded",
		zap.String("scope_id", scopeID),
		zap.Int("tokens", tokens),
		zap.Float64("cost_usd", costUSD),
	)
}

// TotalFor returns the aggregate spend recorded under a scope.
func (l *Ledger) TotalFor(scopeID string) Total {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[scopeID]
}

// Entries returns a snapshot of every entry recorded under a scope, in
// record order.
func (l *Ledger) Entries(scopeID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ScopeID == scopeID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total number of entries across all scopes.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
