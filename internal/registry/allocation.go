package registry

import (
	"time"

	"organcore/pkg/domain"
)

// allocate performs the full allocation sequence against a single
// transaction: re-read both records, re-check eligibility, persist the
// match, flip the patient to MATCHED and consume the donor organ. Running
// inside one transaction means a concurrent allocation of the same organ
// sees the shrunken inventory and fails its own eligibility re-check.
func allocate(repo Repository, patientID, donorID, approvedBy string, now time.Time, newID func() string) (domain.Match, error) {
	patient, err := repo.GetPatient(patientID)
	if err != nil {
		return domain.Match{}, err
	}
	donor, err := repo.GetDonor(donorID)
	if err != nil {
		return domain.Match{}, err
	}
	if patient.Status != domain.PatientWaiting {
		return domain.Match{}, domain.InvalidArgumentError{Field: "patientStatus", Value: string(patient.Status)}
	}

	breakdown := Score(patient, donor, now)
	if !breakdown.Eligible {
		return domain.Match{}, domain.NotEligibleError{Reason: breakdown.Reason}
	}

	match := domain.Match{
		ID:         domain.KeyPrefixMatch + newID(),
		PatientID:  patient.ID,
		DonorID:    donor.ID,
		OrganType:  patient.OrganNeeded,
		HLAScore:   breakdown.Total,
		Status:     domain.MatchPending,
		ApprovedBy: approvedBy,
	}
	created, err := repo.CreateMatch(match)
	if err != nil {
		return domain.Match{}, err
	}

	patient.Status = domain.PatientMatched
	if _, err := repo.UpdatePatient(patient); err != nil {
		return domain.Match{}, err
	}

	donor.OrgansAvailable = removeOrgan(donor.OrgansAvailable, patient.OrganNeeded)
	if _, err := repo.UpdateDonor(donor); err != nil {
		return domain.Match{}, err
	}
	return created, nil
}

// removeOrgan drops the first occurrence of organ from the slice.
func removeOrgan(organs []domain.Organ, organ domain.Organ) []domain.Organ {
	out := make([]domain.Organ, 0, len(organs))
	removed := false
	for _, o := range organs {
		if !removed && o == organ {
			removed = true
			continue
		}
		out = append(out, o)
	}
	return out
}
