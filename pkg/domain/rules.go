package domain

import (
	"context"
	"encoding/json"
)

// RuleView provides typed read-only access to world state for rule
// evaluation.
type RuleView interface {
	ListPatients() []Patient
	ListDonors() []Donor
	ListHospitals() []Hospital
	ListMatches() []Match
	FindPatient(id string) (Patient, bool)
	FindDonor(id string) (Donor, bool)
	FindHospital(id string) (Hospital, bool)
	FindMatch(id string) (Match, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// NewRuleView adapts a raw world-state view into the typed RuleView the
// engine evaluates against. Records that fail to decode are skipped; the
// repository layer never writes malformed payloads.
func NewRuleView(v TransactionView) RuleView {
	return ruleView{view: v}
}

type ruleView struct {
	view TransactionView
}

func (r ruleView) ListPatients() []Patient {
	return decodeRange[Patient](r.view, KeyPrefixPatient)
}

func (r ruleView) ListDonors() []Donor {
	return decodeRange[Donor](r.view, KeyPrefixDonor)
}

func (r ruleView) ListHospitals() []Hospital {
	return decodeRange[Hospital](r.view, KeyPrefixHospital)
}

func (r ruleView) ListMatches() []Match {
	return decodeRange[Match](r.view, KeyPrefixMatch)
}

func (r ruleView) FindPatient(id string) (Patient, bool) {
	return decodeKey[Patient](r.view, id)
}

func (r ruleView) FindDonor(id string) (Donor, bool) {
	return decodeKey[Donor](r.view, id)
}

func (r ruleView) FindHospital(id string) (Hospital, bool) {
	return decodeKey[Hospital](r.view, id)
}

func (r ruleView) FindMatch(id string) (Match, bool) {
	return decodeKey[Match](r.view, id)
}

func decodeRange[T any](v TransactionView, prefix string) []T {
	entries := v.Scan(prefix, prefix+KeySentinel)
	out := make([]T, 0, len(entries))
	for _, kv := range entries {
		var rec T
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func decodeKey[T any](v TransactionView, key string) (T, bool) {
	var rec T
	raw, ok := v.Get(key)
	if !ok {
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false
	}
	return rec, true
}
