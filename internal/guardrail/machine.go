package guardrail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pickdesk/internal/config"
	"pickdesk/internal/models"
)

// ErrStateCorrupt means the shared state failed an internal consistency
// check. The guardrail reports halted until Reload repairs it; decisions fail
// safe as blocked rather than fail open as pick.
var ErrStateCorrupt = errors.New("guardrail state corrupt")

// Halt reasons reported by Snapshot.
const (
	ReasonDailyLossCap      = "daily_loss_cap"
	ReasonConsecutiveLosses = "max_consecutive_losses"
	ReasonMaxDrawdown       = "max_drawdown"
	ReasonManualHalt        = "manual_halt"
	ReasonStateCorrupt      = "state_corrupt"
)

// Store is the slice of the repository the machine needs.
type Store interface {
	ListSettlementsSince(ctx context.Context, since time.Time) ([]models.Settlement, error)
	LoadGuardrailCheckpoint(ctx context.Context) (*models.GuardrailCheckpoint, error)
	SaveGuardrailCheckpoint(ctx context.Context, item *models.GuardrailCheckpoint) error
}

// State is the single authoritative guardrail record. All access goes through
// the machine's mutex; copies handed out via Snapshot are immutable views.
type State struct {
	DailyLoss         decimal.Decimal `json:"daily_loss"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	DrawdownPct       float64         `json:"drawdown_pct"`
	WindowStart       time.Time       `json:"window_start"`
	ManualHalt        bool            `json:"manual_halt"`
	HaltedSince       *time.Time      `json:"halted_since,omitempty"`
}

// Snapshot is a consistent read of the machine taken under the same lock as
// writes.
type Snapshot struct {
	State
	Halted  bool     `json:"halted"`
	Reasons []string `json:"reasons,omitempty"`
}

// Machine owns the process-wide guardrail state. ACTIVE is initial; HALTED is
// recoverable once the numeric conditions clear and manual halt is off.
type Machine struct {
	Config config.HardStopsConfig
	Store  Store
	Logger *zap.Logger

	// Now is factored for tests.
	Now func() time.Time

	mu      sync.Mutex
	state   State
	corrupt bool
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// Reload initializes or repairs the state from the persisted checkpoint. A
// missing checkpoint starts a fresh ACTIVE state. This is the only way out of
// corrupt mode.
func (m *Machine) Reload(ctx context.Context) error {
	now := m.now()
	loaded := State{ManualHalt: m.Config.ManualHalt.Enabled}
	if m.Store != nil {
		cp, err := m.Store.LoadGuardrailCheckpoint(ctx)
		if err != nil {
			// An unreadable checkpoint may hide a persisted halt. Treat it
			// like a corrupt one: report halted until a clean load succeeds.
			m.mu.Lock()
			m.corrupt = true
			m.mu.Unlock()
			return err
		}
		if cp != nil {
			loaded = State{
				DailyLoss:         cp.DailyLoss,
				ConsecutiveLosses: cp.ConsecutiveLosses,
				DrawdownPct:       cp.DrawdownPct,
				WindowStart:       cp.WindowStart,
				ManualHalt:        cp.ManualHalt,
				HaltedSince:       cp.HaltedSince,
			}
		}
	}
	if loaded.WindowStart.IsZero() {
		loaded.WindowStart = now
	}
	if err := validateState(loaded); err != nil {
		// A bad checkpoint leaves the machine in corrupt mode: reads report
		// halted until a repaired checkpoint loads cleanly.
		m.mu.Lock()
		m.corrupt = true
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.state = loaded
	m.corrupt = false
	m.updateHaltedLocked(now)
	m.mu.Unlock()

	if m.Logger != nil {
		m.Logger.Info("guardrail state loaded",
			zap.String("daily_loss", loaded.DailyLoss.StringFixed(2)),
			zap.Int("consecutive_losses", loaded.ConsecutiveLosses),
			zap.Float64("drawdown_pct", loaded.DrawdownPct),
			zap.Bool("manual_halt", loaded.ManualHalt),
		)
	}
	return nil
}

// Checkpoint persists the current state. Persistence failures propagate
// unmodified; the caller decides whether they are fatal.
func (m *Machine) Checkpoint(ctx context.Context) error {
	if m.Store == nil {
		return nil
	}
	m.mu.Lock()
	cp := models.GuardrailCheckpoint{
		ID:                1,
		DailyLoss:         m.state.DailyLoss,
		ConsecutiveLosses: m.state.ConsecutiveLosses,
		DrawdownPct:       m.state.DrawdownPct,
		WindowStart:       m.state.WindowStart,
		ManualHalt:        m.state.ManualHalt,
		HaltedSince:       m.state.HaltedSince,
	}
	m.mu.Unlock()
	return m.Store.SaveGuardrailCheckpoint(ctx, &cp)
}

// ApplySettlement feeds one win/loss outcome in. Settlements are serialized
// under the machine lock so concurrent losses cannot both observe the same
// counter and lose the increment that should have halted the system.
func (m *Machine) ApplySettlement(ctx context.Context, outcome string, amount decimal.Decimal, at time.Time) (Snapshot, error) {
	if amount.IsNegative() {
		return Snapshot{}, fmt.Errorf("settlement amount must be non-negative, got %s", amount.String())
	}
	if at.IsZero() {
		at = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt {
		return m.snapshotLocked(), ErrStateCorrupt
	}

	switch outcome {
	case models.SettlementOutcomeLoss:
		m.state.ConsecutiveLosses++
		m.state.DailyLoss = m.state.DailyLoss.Add(amount)
		m.recomputeDrawdownLocked(ctx, at)
	case models.SettlementOutcomeWin:
		m.state.ConsecutiveLosses = 0
		// A single win does not retroactively un-halt a session: daily loss
		// and drawdown come back from the rolling window, not a decrement.
		m.recomputeDailyLossLocked(ctx, at)
		m.recomputeDrawdownLocked(ctx, at)
	default:
		return m.snapshotLocked(), fmt.Errorf("unknown settlement outcome %q", outcome)
	}

	if err := validateState(m.state); err != nil {
		m.corrupt = true
		if m.Logger != nil {
			m.Logger.Error("guardrail state corrupt", zap.Error(err))
		}
		return m.snapshotLocked(), ErrStateCorrupt
	}

	m.updateHaltedLocked(at)
	return m.snapshotLocked(), nil
}

// SetManualHalt toggles the administrative halt. It layers on top of the
// numeric conditions; clearing it does not clear a numeric halt.
func (m *Machine) SetManualHalt(enabled bool) Snapshot {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ManualHalt = enabled
	m.updateHaltedLocked(now)
	if m.Logger != nil {
		m.Logger.Info("manual halt set", zap.Bool("enabled", enabled))
	}
	return m.snapshotLocked()
}

// DailyCutover resets the daily loss counter. Consecutive losses and drawdown
// are rolling measures and are not touched by the calendar.
func (m *Machine) DailyCutover(ctx context.Context, now time.Time) Snapshot {
	if now.IsZero() {
		now = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.DailyLoss = decimal.Zero
	m.state.WindowStart = now
	m.recomputeDrawdownLocked(ctx, now)
	m.updateHaltedLocked(now)
	if m.Logger != nil {
		m.Logger.Info("daily cutover applied", zap.Time("window_start", now))
	}
	return m.snapshotLocked()
}

// Snapshot returns a consistent view for classification. A nil machine or a
// corrupt state reads as halted.
func (m *Machine) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Halted: true, Reasons: []string{ReasonStateCorrupt}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.corrupt {
		snap.Halted = true
		snap.Reasons = []string{ReasonStateCorrupt}
		return snap
	}
	snap.Reasons = m.haltReasonsLocked()
	snap.Halted = len(snap.Reasons) > 0
	return snap
}

func (m *Machine) haltReasonsLocked() []string {
	var reasons []string
	if m.Config.DailyLossCap.Value > 0 &&
		m.state.DailyLoss.GreaterThanOrEqual(decimal.NewFromFloat(m.Config.DailyLossCap.Value)) {
		reasons = append(reasons, ReasonDailyLossCap)
	}
	if m.state.ConsecutiveLosses >= m.Config.MaxConsecutiveLosses.Count {
		reasons = append(reasons, ReasonConsecutiveLosses)
	}
	if m.Config.MaxDrawdown.Percent > 0 && m.state.DrawdownPct >= m.Config.MaxDrawdown.Percent {
		reasons = append(reasons, ReasonMaxDrawdown)
	}
	if m.state.ManualHalt {
		reasons = append(reasons, ReasonManualHalt)
	}
	return reasons
}

// updateHaltedLocked maintains haltedSince across transitions.
func (m *Machine) updateHaltedLocked(now time.Time) {
	halted := m.corrupt || len(m.haltReasonsLocked()) > 0
	switch {
	case halted && m.state.HaltedSince == nil:
		t := now
		m.state.HaltedSince = &t
		if m.Logger != nil {
			m.Logger.Warn("guardrail halted", zap.Strings("reasons", m.haltReasonsLocked()))
		}
	case !halted && m.state.HaltedSince != nil:
		m.state.HaltedSince = nil
		if m.Logger != nil {
			m.Logger.Info("guardrail resumed")
		}
	}
}

// recomputeDailyLossLocked rebuilds the daily loss from persisted settlements
// in the current daily window.
func (m *Machine) recomputeDailyLossLocked(ctx context.Context, now time.Time) {
	if m.Store == nil {
		return
	}
	items, err := m.Store.ListSettlementsSince(ctx, m.state.WindowStart)
	if err != nil {
		// Keep the last known value; stale-but-conservative beats zeroed.
		if m.Logger != nil {
			m.Logger.Warn("daily loss recompute failed", zap.Error(err))
		}
		return
	}
	total := decimal.Zero
	for _, s := range items {
		if s.Outcome == models.SettlementOutcomeLoss && !s.OccurredAt.After(now) {
			total = total.Add(s.Amount)
		}
	}
	m.state.DailyLoss = total
}

// recomputeDrawdownLocked rebuilds the drawdown over the trailing window.
func (m *Machine) recomputeDrawdownLocked(ctx context.Context, now time.Time) {
	if m.Store == nil {
		return
	}
	since := now.AddDate(0, 0, -m.Config.MaxDrawdown.WindowDays)
	items, err := m.Store.ListSettlementsSince(ctx, since)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Warn("drawdown recompute failed", zap.Error(err))
		}
		return
	}
	m.state.DrawdownPct = DrawdownPct(equityCurve(items))
}

// equityCurve folds settlements, ordered by occurrence, into a cumulative net
// series (wins add, losses subtract).
func equityCurve(items []models.Settlement) []decimal.Decimal {
	curve := make([]decimal.Decimal, 0, len(items))
	total := decimal.Zero
	for _, s := range items {
		if s.Outcome == models.SettlementOutcomeWin {
			total = total.Add(s.Amount)
		} else {
			total = total.Sub(s.Amount)
		}
		curve = append(curve, total)
	}
	return curve
}

// DrawdownPct is the largest peak-to-current decline of a cumulative net
// series, as a fraction of the peak. With no positive peak in the window
// there is no base to measure against and the result is 0; the loss-cap and
// consecutive-loss stops cover pure losing streaks.
func DrawdownPct(curve []decimal.Decimal) float64 {
	peak := decimal.Zero
	worst := 0.0
	for _, v := range curve {
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsPositive() {
			dd, _ := peak.Sub(v).Div(peak).Float64()
			if dd > worst {
				worst = dd
			}
		}
	}
	if worst > 1 {
		worst = 1
	}
	return worst
}

func validateState(s State) error {
	if s.ConsecutiveLosses < 0 {
		return fmt.Errorf("%w: negative consecutive losses %d", ErrStateCorrupt, s.ConsecutiveLosses)
	}
	if s.DailyLoss.IsNegative() {
		return fmt.Errorf("%w: negative daily loss %s", ErrStateCorrupt, s.DailyLoss.String())
	}
	if s.DrawdownPct < 0 || s.DrawdownPct > 1 {
		return fmt.Errorf("%w: drawdown pct %v outside [0,1]", ErrStateCorrupt, s.DrawdownPct)
	}
	return nil
}
