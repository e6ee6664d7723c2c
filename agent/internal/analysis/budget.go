package analysis

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/atomicfile"
)

// Model pricing in USD per million tokens.
const (
	InputPricePerMillion  = 0.80
	OutputPricePerMillion = 4.00
)

// Cost returns the USD cost of a call with the given token counts.
func Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*InputPricePerMillion +
		float64(outputTokens)/1e6*OutputPricePerMillion
}

type budgetState struct {
	Date   string  `json:"date"`
	Spent  float64 `json:"spent"`
	Budget float64 `json:"budget"`
}

// Budget tracks LLM spend for the current day and persists it so restarts do
// not reset the allowance. The day boundary is the local date.
type Budget struct {
	limit  float64
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	date  string
	spent float64
}

// NewBudget loads today's spend from path. A missing, corrupt or stale file
// starts the day at zero.
func NewBudget(limitUSD float64, path string, logger *slog.Logger) *Budget {
	return newBudget(limitUSD, path, logger, time.Now)
}

func newBudget(limitUSD float64, path string, logger *slog.Logger, now func() time.Time) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Budget{limit: limitUSD, path: path, logger: logger, now: now}
	b.load()
	return b
}

// Allow reports whether a call of about estimatedTokens (split evenly between
// input and output) stays strictly below the daily limit.
func (b *Budget) Allow(estimatedTokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	half := estimatedTokens / 2
	est := Cost(half, half)
	if b.spent+est < b.limit {
		return true
	}
	b.logger.Warn("analysis: daily budget exhausted",
		"spent_usd", b.spent, "estimate_usd", est, "limit_usd", b.limit)
	return false
}

// Record adds the cost of a completed call and persists the new total.
func (b *Budget) Record(u Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	cost := Cost(u.InputTokens, u.OutputTokens)
	b.spent += cost
	if err := atomicfile.WriteJSON(b.path, budgetState{Date: b.date, Spent: b.spent, Budget: b.limit}); err != nil {
		b.logger.Error("analysis: persist budget failed", "path", b.path, "err", err)
	}
	b.logger.Info("analysis: recorded usage",
		"input_tokens", u.InputTokens, "output_tokens", u.OutputTokens,
		"cost_usd", cost, "spent_usd", b.spent, "limit_usd", b.limit)
}

// Status is a summary of today's spend.
type Status struct {
	Date           string  `json:"date"`
	LimitUSD       float64 `json:"limit_usd"`
	SpentUSD       float64 `json:"spent_usd"`
	RemainingUSD   float64 `json:"remaining_usd"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// Status returns today's spend figures.
func (b *Budget) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	st := Status{Date: b.date, LimitUSD: b.limit, SpentUSD: b.spent}
	if rem := b.limit - b.spent; rem > 0 {
		st.RemainingUSD = rem
	}
	if b.limit > 0 {
		st.UtilizationPct = b.spent / b.limit * 100
	}
	return st
}

// rollover zeroes the spend when the process outlives the day it loaded.
func (b *Budget) rollover() {
	today := b.now().Format("2006-01-02")
	if b.date != today {
		b.date = today
		b.spent = 0
	}
}

func (b *Budget) load() {
	b.date = b.now().Format("2006-01-02")

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		b.logger.Warn("analysis: read budget state failed, starting fresh", "path", b.path, "err", err)
		return
	}
	var st budgetState
	if err := json.Unmarshal(data, &st); err != nil {
		b.logger.Warn("analysis: parse budget state failed, starting fresh", "path", b.path, "err", err)
		return
	}
	if st.Date == b.date {
		b.spent = st.Spent
	}
}
