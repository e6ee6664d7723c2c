package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const dateLayout = "2006-01-02"

// Record is the per-key counter for the current day.
type Record struct {
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// state is the persisted document.
type state struct {
	Date      string             `json:"date"`
	Incidents map[string]*Record `json:"incidents"`
}

// Store is the file-backed daily incident counter.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time // injectable for deterministic tests

	// loadLevel is the level of routine load messages.
	loadLevel slog.Level

	mu    sync.Mutex
	state state
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for the day boundary and
// first_seen/last_seen stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the store at path. A missing, unreadable or stale file yields an
// empty counter map for today.
func Open(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now, loadLevel: slog.LevelInfo}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.load()
	return s
}

// ReadSnapshot loads the file at path and returns today's counters without
// keeping a Store around. Routine load messages are logged at debug level,
// which suits callers that read on every request.
func ReadSnapshot(path string, opts ...Option) Snapshot {
	opts = append(opts, func(s *Store) { s.loadLevel = slog.LevelDebug })
	return Open(path, opts...).Snapshot()
}

// Key builds the incident key for one metric of one target.
func Key(collector, target, metric string) string {
	return collector + ":" + target + ":" + metric
}

// Date returns the day the counters belong to (YYYY-MM-DD).
func (s *Store) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Date
}

// DailyCount returns how many times key was incremented today.
func (s *Store) DailyCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.state.Incidents[key]; ok {
		return r.Count
	}
	return 0
}

// Increment adds one occurrence for key and persists the full state before
// returning. Persist failures are logged only.
func (s *Store) Increment(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r, ok := s.state.Incidents[key]
	if !ok {
		r = &Record{FirstSeen: now}
		s.state.Incidents[key] = r
	}
	r.Count++
	r.LastSeen = now

	if err := writeState(s.path, &s.state); err != nil {
		s.logger.Error("history: persist failed, counters kept in memory",
			"path", s.path, "key", key, "err", err)
		return
	}
	s.logger.Debug("history: incremented", "key", key, "count", r.Count)
}

// RedMetricKeys is the method form of the package-level RedMetricKeys.
// It never reads or changes counters.
func (s *Store) RedMetricKeys(obs types.Observation, set threshold.Set) []string {
	return RedMetricKeys(obs, set)
}

// RedMetricKeys returns the incident keys of every dampenable metric of obs
// that is independently at red under set, in registry order.
//
// Observations carrying an error are binary failures and yield no keys, as do
// collectors with no registered metrics. A metric absent from obs, or whose
// red cut-point is not configured, is skipped.
func RedMetricKeys(obs types.Observation, set threshold.Set) []string {
	if obs.HasError() {
		return nil
	}
	var keys []string
	for _, d := range threshold.ForCollector(obs.Collector) {
		value, ok := obs.Metrics.Float(d.Metric)
		if !ok {
			continue
		}
		red, ok := set.Red(d.Family)
		if !ok {
			continue
		}
		if threshold.Breached(value, red, d.Direction) {
			keys = append(keys, Key(obs.Collector, obs.Target, d.Metric))
		}
	}
	return keys
}

// Entry is one key in a Snapshot.
type Entry struct {
	Key string `json:"key"`
	Record
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Date      string  `json:"date"`
	Incidents []Entry `json:"incidents"`
}

// Snapshot returns a copy of today's counters sorted by key.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Date: s.state.Date, Incidents: make([]Entry, 0, len(s.state.Incidents))}
	for k, r := range s.state.Incidents {
		out.Incidents = append(out.Incidents, Entry{Key: k, Record: *r})
	}
	sort.Slice(out.Incidents, func(i, j int) bool { return out.Incidents[i].Key < out.Incidents[j].Key })
	return out
}

func (s *Store) load() {
	today := s.now().Format(dateLayout)
	s.state = state{Date: today, Incidents: make(map[string]*Record)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Log(context.Background(), s.loadLevel, "history: no existing state, starting fresh", "path", s.path)
		return
	}
	if err != nil {
		s.logger.Warn("history: read failed, starting fresh", "path", s.path, "err", err)
		return
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("history: parse failed, starting fresh", "path", s.path, "err", err)
		return
	}
	if st.Date != today {
		s.logger.Log(context.Background(), s.loadLevel, "history: new day, counters reset", "stored", st.Date, "today", today)
		return
	}
	for k, r := range st.Incidents {
		if r != nil {
			s.state.Incidents[k] = r
		}
	}
	s.logger.Log(context.Background(), s.loadLevel, "history: restored counters", "date", st.Date, "keys", len(s.state.Incidents))
}
