package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
)

var (
	ErrInvalidName     = fmt.Errorf("%w: strategy name is blank", apperr.ErrValidation)
	ErrIndexOutOfRange = fmt.Errorf("%w: indicator index out of range", apperr.ErrValidation)
)

// State is the builder's lifecycle position.
type State int

const (
	StateEmpty State = iota
	StateEditing
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEditing:
		return "editing"
	case StateSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// Option customises a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source used on first save. The default
// clock truncates to milliseconds so every store round-trips it exactly.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides the generator for strategy and instance ids.
func WithIDGenerator(gen func() string) Option {
	return func(b *Builder) { b.newID = gen }
}

// Builder holds an in-progress strategy configuration.
type Builder struct {
	catalog *indicator.Catalog
	now     func() time.Time
	newID   func() string

	state      State
	id         string
	createdAt  time.Time
	active     bool
	name       string
	coin       string
	timeframe  string
	indicators []indicator.Instance
	risk       RiskSettings
}

// New returns an empty builder backed by cat.
func New(cat *indicator.Catalog, opts ...Option) Builder {
	b := Builder{
		catalog: cat,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Load seeds a builder from a saved strategy for editing. Saving the result
// keeps the strategy's id, creation time and active flag.
func (b Builder) Load(s Strategy) Builder {
	s = s.Clone()
	b.state = StateEditing
	b.id = s.ID
	b.createdAt = s.CreatedAt
	b.active = s.Active
	b.name = s.Name
	b.coin = s.Coin
	b.timeframe = s.Timeframe
	b.indicators = s.Indicators
	b.risk = s.RiskSettings
	return b
}

func (b Builder) State() State                     { return b.state }
func (b Builder) ID() string                       { return b.id }
func (b Builder) Name() string                     { return b.name }
func (b Builder) Coin() string                     { return b.coin }
func (b Builder) Timeframe() string                { return b.timeframe }
func (b Builder) Risk() RiskSettings               { return b.risk.Clone() }
func (b Builder) Catalog() *indicator.Catalog      { return b.catalog }
func (b Builder) Indicators() []indicator.Instance { return cloneInstances(b.indicators) }

// Indicator returns a copy of the instance at index.
func (b Builder) Indicator(index int) (indicator.Instance, error) {
	if err := b.checkIndex(index); err != nil {
		return indicator.Instance{}, err
	}
	return b.indicators[index].Clone(), nil
}

// SelectMarket sets the market symbol.
func (b Builder) SelectMarket(symbol string) Builder {
	b.coin = strings.ToUpper(strings.TrimSpace(symbol))
	b.state = StateEditing
	return b
}

// SelectTimeframe sets the candle interval code.
func (b Builder) SelectTimeframe(code string) Builder {
	b.timeframe = strings.TrimSpace(code)
	b.state = StateEditing
	return b
}

// AddIndicator appends a default-configured instance of the named indicator.
func (b Builder) AddIndicator(name string) (Builder, error) {
	def, err := b.catalog.Find(name)
	if err != nil {
		return b, err
	}
	inst := indicator.NewInstance(def, b.newID())
	b.indicators = append(cloneInstances(b.indicators), inst)
	b.state = StateEditing
	return b, nil
}

// RemoveIndicator drops the instance with the given id. Removing an id that
// is not present is a no-op.
func (b Builder) RemoveIndicator(id string) Builder {
	idx := -1
	for i, inst := range b.indicators {
		if inst.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return b
	}
	list := make([]indicator.Instance, 0, len(b.indicators)-1)
	list = append(list, cloneInstances(b.indicators[:idx])...)
	list = append(list, cloneInstances(b.indicators[idx+1:])...)
	b.indicators = list
	b.state = StateEditing
	return b
}

// UpdateIndicator replaces the instance at index. The replacement is
// normalized against the catalog, and keeps the old id if it has none.
func (b Builder) UpdateIndicator(index int, inst indicator.Instance) (Builder, error) {
	if err := b.checkIndex(index); err != nil {
		return b, err
	}
	norm, err := b.catalog.Normalize(inst)
	if err != nil {
		return b, err
	}
	if norm.ID == "" {
		norm.ID = b.indicators[index].ID
	}
	return b.replace(index, norm), nil
}

// SetParam applies a raw edit to one parameter of the instance at index.
func (b Builder) SetParam(index int, name string, raw float64) (Builder, error) {
	inst, def, err := b.resolve(index)
	if err != nil {
		return b, err
	}
	return b.replace(index, inst.WithParam(def, name, raw)), nil
}

// SetThresholds edits the trigger thresholds of the instance at index.
// A nil bound is left as is.
func (b Builder) SetThresholds(index int, lower, upper *float64) (Builder, error) {
	inst, def, err := b.resolve(index)
	if err != nil {
		return b, err
	}
	return b.replace(index, inst.WithThresholds(def, lower, upper)), nil
}

// SetTriggerType changes the comparison of the instance at index.
func (b Builder) SetTriggerType(index int, t indicator.TriggerType) (Builder, error) {
	inst, def, err := b.resolve(index)
	if err != nil {
		return b, err
	}
	updated, err := inst.WithTriggerType(def, t)
	if err != nil {
		return b, err
	}
	return b.replace(index, updated), nil
}

// SetRiskSettings replaces all three risk values; nil clears one.
func (b Builder) SetRiskSettings(takeProfit, stopLoss, tradeAmount *float64) (Builder, error) {
	r := RiskSettings{TakeProfit: takeProfit, StopLoss: stopLoss, TradeAmount: tradeAmount}
	if err := r.Validate(); err != nil {
		return b, err
	}
	b.risk = r.Clone()
	b.state = StateEditing
	return b, nil
}

// Save snapshots the builder under name. A builder that has never been
// saved or loaded gets a fresh id and creation time; otherwise both are kept.
func (b Builder) Save(name string) (Builder, Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return b, Strategy{}, ErrInvalidName
	}
	if b.id == "" {
		b.id = b.newID()
		b.createdAt = b.now()
	}
	b.name = name
	b.state = StateSaved
	b.indicators = cloneInstances(b.indicators)

	snap := Strategy{
		ID:           b.id,
		Name:         b.name,
		Coin:         b.coin,
		Timeframe:    b.timeframe,
		Indicators:   cloneInstances(b.indicators),
		Active:       b.active,
		CreatedAt:    b.createdAt,
		RiskSettings: b.risk.Clone(),
	}
	if snap.Indicators == nil {
		snap.Indicators = []indicator.Instance{}
	}
	return b, snap, nil
}

func (b Builder) checkIndex(index int) error {
	if index < 0 || index >= len(b.indicators) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(b.indicators))
	}
	return nil
}

func (b Builder) resolve(index int) (indicator.Instance, indicator.Definition, error) {
	if err := b.checkIndex(index); err != nil {
		return indicator.Instance{}, indicator.Definition{}, err
	}
	inst := b.indicators[index]
	def, err := b.catalog.ByKind(inst.Indicator)
	if err != nil {
		return indicator.Instance{}, indicator.Definition{}, err
	}
	return inst, def, nil
}

func (b Builder) replace(index int, inst indicator.Instance) Builder {
	list := cloneInstances(b.indicators)
	list[index] = inst
	b.indicators = list
	b.state = StateEditing
	return b
}

// Load is shorthand for New(cat, opts...).Load(s).
func Load(cat *indicator.Catalog, s Strategy, opts ...Option) Builder {
	return New(cat, opts...).Load(s)
}
