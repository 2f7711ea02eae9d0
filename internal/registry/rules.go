package registry

import "organcore/pkg/domain"

// NewDefaultRulesEngine returns an engine with the standing registry
// invariants registered. Every store used by the service is expected to
// evaluate this engine at commit time.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(OrganInventoryRule{})
	engine.Register(StatusValidityRule{})
	engine.Register(MatchImmutabilityRule{})
	return engine
}
