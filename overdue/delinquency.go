package overdue

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// DELINQUENCY - Grace-period evaluation and notification
// =============================================================================

// Delinquency evaluates whether an overdue account has become delinquent.
type Delinquency struct {
	Config *engine.LoanConfig
	Gate   engine.PolicyGate
	Logger *zap.Logger
}

func NewDelinquency(cfg *engine.LoanConfig, gate engine.PolicyGate, logger *zap.Logger) *Delinquency {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &Delinquency{Config: cfg, Gate: gate, Logger: logger}
}

// Run executes one scheduled delinquency check. The notification fires at
// most once per overdue episode: the delinquency flag suppresses further
// periodic checks until the next overdue event re-arms one.
func (d *Delinquency) Run(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	if err := snapshot.Validate(); err != nil {
		return engine.Result{}, err
	}
	result := engine.Result{
		Batch: engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "delinquency check"),
	}
	result.Notifications = append(result.Notifications, d.evaluate(snapshot, trigger)...)
	return result, nil
}

// evaluate applies the delinquency predicate against a snapshot. Shared with
// the zero-grace path inside the overdue checker.
func (d *Delinquency) evaluate(snapshot engine.BalanceSnapshot, trigger engine.Trigger) []engine.Notification {
	if d.Gate.IsBlocked(engine.GateDelinquency, trigger.At) {
		return nil
	}
	if d.Gate.IsBlocked(engine.GateDelinquencyFlag, trigger.At) {
		// Already declared for this episode.
		return nil
	}

	late := snapshot.TotalOverdue().Add(snapshot.Balance(engine.AddrPenalties))
	if !late.IsPositive() {
		return nil
	}

	d.Logger.Warn("account delinquent",
		zap.String("account", snapshot.AccountID),
		zap.String("late_balance", late.String()),
	)

	return []engine.Notification{{
		ID:        uuid.NewString(),
		AccountID: snapshot.AccountID,
		Type:      engine.NotifyDelinquent,
		At:        trigger.At,
		Details: map[string]string{
			"denomination": snapshot.Denomination,
			"late_balance": late.StringFixed(engine.MoneyPrecision),
		},
	}}
}
