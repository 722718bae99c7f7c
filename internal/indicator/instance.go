package indicator

import "fmt"

// Instance is a configured use of an indicator inside a strategy: one value
// per parameter spec, in spec order, plus its trigger condition.
type Instance struct {
	ID        string       `json:"id"`
	Indicator Kind         `json:"indicator"`
	Params    []ParamValue `json:"params"`
	Trigger   Condition    `json:"trigger"`
}

// NewInstance creates an instance with every parameter at its default.
func NewInstance(def Definition, id string) Instance {
	params := make([]ParamValue, len(def.Params))
	for i, p := range def.Params {
		params[i] = p.Instantiate()
	}
	return Instance{
		ID:        id,
		Indicator: def.Kind,
		Params:    params,
		Trigger:   DefaultFor(def),
	}
}

// Name is the catalog name of the instance's indicator.
func (i Instance) Name() string { return i.Indicator.String() }

// Param returns the value of the named parameter.
func (i Instance) Param(name string) (float64, bool) {
	for _, p := range i.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// Clone returns a deep copy.
func (i Instance) Clone() Instance {
	i.Params = append([]ParamValue(nil), i.Params...)
	i.Trigger = i.Trigger.Clone()
	return i
}

// Describe renders the instance as "RSI(14, 70, 30) 30 – 70".
func (i Instance) Describe() string {
	s := i.Name()
	if len(i.Params) > 0 {
		s += "("
		for n, p := range i.Params {
			if n > 0 {
				s += ", "
			}
			s += formatNum(p.Value)
		}
		s += ")"
	}
	return s + " " + Describe(i.Trigger)
}

// WithParam applies a raw edit to the named parameter. Editing a parameter
// that mirrors an editable-signal threshold moves the trigger threshold too,
// so the ordering invariant is enforced in one place. Unknown names leave
// the instance unchanged.
func (i Instance) WithParam(def Definition, name string, raw float64) Instance {
	spec, ok := def.Param(name)
	if !ok {
		return i.Clone()
	}
	if lowerName, upperName, mirrored := ThresholdParams(def.Kind); mirrored {
		switch name {
		case lowerName:
			return i.WithThresholds(def, &raw, nil)
		case upperName:
			return i.WithThresholds(def, nil, &raw)
		}
	}
	out := i.Clone()
	for n, p := range out.Params {
		if p.Name == name {
			out.Params[n] = spec.Set(p, raw)
		}
	}
	return out
}

// WithThresholds applies SetThresholds to the trigger and, for
// editable-signal indicators, copies the result into the mirrored
// oversold/overbought parameters.
func (i Instance) WithThresholds(def Definition, lower, upper *float64) Instance {
	out := i.Clone()
	out.Trigger = SetThresholds(def, out.Trigger, lower, upper)
	out.syncThresholdParams(def)
	return out
}

// WithTriggerType changes the comparison type; see SetType.
func (i Instance) WithTriggerType(def Definition, t TriggerType) (Instance, error) {
	cond, err := SetType(def, i.Trigger, t)
	if err != nil {
		return i, err
	}
	out := i.Clone()
	out.Trigger = cond
	return out, nil
}

func (i *Instance) syncThresholdParams(def Definition) {
	lowerName, upperName, ok := ThresholdParams(def.Kind)
	if !ok {
		return
	}
	for n, p := range i.Params {
		spec, _ := def.Param(p.Name)
		switch p.Name {
		case lowerName:
			i.Params[n] = spec.Set(p, i.Trigger.Value)
		case upperName:
			i.Params[n] = spec.Set(p, i.Trigger.Upper())
		}
	}
}

// Normalize rebuilds inst against its catalog definition: parameters are
// matched by name (missing ones take the default, unknown ones are dropped),
// every value is snapped and clamped, and the trigger is re-validated.
// It fails only when the instance's indicator is not in the catalog.
func (c *Catalog) Normalize(inst Instance) (Instance, error) {
	def, err := c.ByKind(inst.Indicator)
	if err != nil {
		return inst, err
	}

	out := Instance{ID: inst.ID, Indicator: def.Kind}
	out.Params = make([]ParamValue, len(def.Params))
	for n, spec := range def.Params {
		v := spec.Instantiate()
		if raw, ok := inst.Param(spec.Name); ok {
			v = spec.Set(v, raw)
		}
		out.Params[n] = v
	}

	trig := inst.Trigger.Clone()
	if def.Kind.EditableSignal() {
		lower, upper := trig.Value, trig.Upper()
		out.Trigger = SetThresholds(def, DefaultFor(def), &lower, &upper)
		out.syncThresholdParams(def)
		return out, nil
	}
	if !trig.Type.Valid() {
		return inst, fmt.Errorf("%w: %q on %s", ErrInvalidTriggerType, string(trig.Type), def.Name)
	}
	out.Trigger = SetThresholds(def, Condition{Type: trig.Type, Value: trig.Value}, &trig.Value, trig.CompareValue)
	return out, nil
}
