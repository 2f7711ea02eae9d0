package registry

import (
	"context"
	"fmt"

	"organcore/pkg/domain"
)

// OrganInventoryRule blocks donor updates that grow or duplicate the organ
// inventory. Once a donor is registered, organs may only be consumed.
type OrganInventoryRule struct{}

// Name identifies the rule.
func (OrganInventoryRule) Name() string { return "organ_inventory" }

// Evaluate inspects donor mutations in the change set.
func (OrganInventoryRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityDonor {
			continue
		}
		after, ok := change.After.(domain.Donor)
		if !ok {
			continue
		}
		if dup, found := firstDuplicateOrgan(after.OrgansAvailable); found {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "organ_inventory",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("donor %s lists organ %s more than once", after.ID, dup),
				Entity:   domain.EntityDonor,
				EntityID: after.ID,
			})
		}
		if change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.Donor)
		if !ok {
			continue
		}
		if organ, grew := firstAddedOrgan(before.OrgansAvailable, after.OrgansAvailable); grew {
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "organ_inventory",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("donor %s inventory may only shrink; organ %s was added", after.ID, organ),
				Entity:   domain.EntityDonor,
				EntityID: after.ID,
			})
		}
	}
	return result, nil
}

func firstDuplicateOrgan(organs []domain.Organ) (domain.Organ, bool) {
	seen := make(map[domain.Organ]struct{}, len(organs))
	for _, organ := range organs {
		if _, dup := seen[organ]; dup {
			return organ, true
		}
		seen[organ] = struct{}{}
	}
	return "", false
}

func firstAddedOrgan(before, after []domain.Organ) (domain.Organ, bool) {
	remaining := make(map[domain.Organ]int, len(before))
	for _, organ := range before {
		remaining[organ]++
	}
	for _, organ := range after {
		if remaining[organ] == 0 {
			return organ, true
		}
		remaining[organ]--
	}
	return "", false
}
