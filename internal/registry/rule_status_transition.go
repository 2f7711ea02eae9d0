package registry

import (
	"context"
	"fmt"

	"organcore/pkg/domain"
)

// StatusValidityRule blocks writes that would persist a patient, donor or
// match with a status outside its enumeration.
type StatusValidityRule struct{}

// Name identifies the rule.
func (StatusValidityRule) Name() string { return "status_validity" }

// Evaluate inspects every create and update in the change set. Inside a
// transaction that creates a match, a patient update may not land on
// WAITING; the allocation that produced the match must leave its patient
// MATCHED.
func (StatusValidityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	createsMatch := false
	for _, change := range changes {
		if change.Entity == domain.EntityMatch && change.Action == domain.ActionCreate {
			createsMatch = true
			break
		}
	}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		switch after := change.After.(type) {
		case domain.Patient:
			if !after.Status.Valid() {
				result.Violations = append(result.Violations, statusViolation(domain.EntityPatient, after.ID, string(after.Status)))
			}
			if createsMatch && change.Action == domain.ActionUpdate && after.Status == domain.PatientWaiting {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "status_validity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("patient %s cannot return to %s while a match is created", after.ID, domain.PatientWaiting),
					Entity:   domain.EntityPatient,
					EntityID: after.ID,
				})
			}
		case domain.Donor:
			if !after.VerificationStatus.Valid() {
				result.Violations = append(result.Violations, statusViolation(domain.EntityDonor, after.ID, string(after.VerificationStatus)))
			}
		case domain.Match:
			if !after.Status.Valid() {
				result.Violations = append(result.Violations, statusViolation(domain.EntityMatch, after.ID, string(after.Status)))
			}
		}
	}
	return result, nil
}

func statusViolation(entity domain.EntityType, id, status string) domain.Violation {
	return domain.Violation{
		Rule:     "status_validity",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("%s %s has invalid status %q", entity, id, status),
		Entity:   entity,
		EntityID: id,
	}
}

// MatchImmutabilityRule blocks updates to match records. Matches are written
// once by allocation; administrative wipes delete them instead.
type MatchImmutabilityRule struct{}

// Name identifies the rule.
func (MatchImmutabilityRule) Name() string { return "match_immutable" }

// Evaluate blocks any match update in the change set.
func (MatchImmutabilityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityMatch || change.Action != domain.ActionUpdate {
			continue
		}
		id := ""
		if after, ok := change.After.(domain.Match); ok {
			id = after.ID
		}
		result.Violations = append(result.Violations, domain.Violation{
			Rule:     "match_immutable",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("match %s cannot be modified after creation", id),
			Entity:   domain.EntityMatch,
			EntityID: id,
		})
	}
	return result, nil
}
