package registry

import (
	"sort"
	"time"

	"organcore/pkg/domain"
)

// Scoring weights. The HLA and waitlist components are percentages scaled
// by weight; the blood-type bonus is a flat amount already expressed in
// final points, so a perfect pair totals exactly 100.
const (
	hlaWeight       = 0.6
	waitlistWeight  = 0.3
	bloodBonus      = 10.0
	waitlistCapDays = 30.0
)

// bloodCompatibility is the fixed ABO/Rh lookup: donor group to the set of
// recipient groups that can receive it. O- donates to everyone; AB+
// receives from everyone; Rh- groups never receive Rh+ blood.
var bloodCompatibility = map[domain.BloodType]map[domain.BloodType]bool{
	domain.BloodONeg:  toRecipientSet(domain.BloodONeg, domain.BloodOPos, domain.BloodANeg, domain.BloodAPos, domain.BloodBNeg, domain.BloodBPos, domain.BloodABNeg, domain.BloodABPos),
	domain.BloodOPos:  toRecipientSet(domain.BloodOPos, domain.BloodAPos, domain.BloodBPos, domain.BloodABPos),
	domain.BloodANeg:  toRecipientSet(domain.BloodANeg, domain.BloodAPos, domain.BloodABNeg, domain.BloodABPos),
	domain.BloodAPos:  toRecipientSet(domain.BloodAPos, domain.BloodABPos),
	domain.BloodBNeg:  toRecipientSet(domain.BloodBNeg, domain.BloodBPos, domain.BloodABNeg, domain.BloodABPos),
	domain.BloodBPos:  toRecipientSet(domain.BloodBPos, domain.BloodABPos),
	domain.BloodABNeg: toRecipientSet(domain.BloodABNeg, domain.BloodABPos),
	domain.BloodABPos: toRecipientSet(domain.BloodABPos),
}

func toRecipientSet(recipients ...domain.BloodType) map[domain.BloodType]bool {
	set := make(map[domain.BloodType]bool, len(recipients))
	for _, r := range recipients {
		set[r] = true
	}
	return set
}

// BloodCompatible reports whether a recipient of the given group can
// receive from the given donor group.
func BloodCompatible(donor, recipient domain.BloodType) bool {
	return bloodCompatibility[donor][recipient]
}

// Breakdown carries the component scores behind a compatibility decision.
// For ineligible pairs the total is 0 and Reason names the first failed
// precondition.
type Breakdown struct {
	Eligible    bool                     `json:"eligible"`
	Reason      domain.EligibilityReason `json:"reason,omitempty"`
	HLARaw      float64                  `json:"hlaRaw"`
	WaitlistRaw float64                  `json:"waitlistRaw"`
	BloodBonus  float64                  `json:"bloodBonus"`
	Total       float64                  `json:"total"`
}

// Score computes the weighted compatibility of a (patient, donor) pair at
// the given instant. Pure: no store access, no clock access.
func Score(patient domain.Patient, donor domain.Donor, now time.Time) Breakdown {
	if donor.VerificationStatus != domain.VerificationVerified {
		return Breakdown{Reason: domain.ReasonNotVerified}
	}
	if !donor.HasOrgan(patient.OrganNeeded) {
		return Breakdown{Reason: domain.ReasonOrganUnavailable}
	}
	if !BloodCompatible(donor.BloodType, patient.BloodType) {
		return Breakdown{Reason: domain.ReasonBloodMismatch}
	}

	b := Breakdown{
		Eligible:    true,
		HLARaw:      hlaOverlap(patient.HLA, donor.HLA),
		WaitlistRaw: waitlistScore(patient.CreatedAt, now),
	}
	if donor.BloodType == patient.BloodType {
		b.BloodBonus = bloodBonus
	}
	b.Total = b.HLARaw*hlaWeight + b.WaitlistRaw*waitlistWeight + b.BloodBonus
	return b
}

// hlaOverlap scores the multiset intersection of antigen tokens against
// the patient's token count, as a percentage.
func hlaOverlap(patientHLA, donorHLA string) float64 {
	patientTokens := domain.ParseHLA(patientHLA)
	if len(patientTokens) == 0 {
		return 0
	}
	donorCounts := make(map[string]int)
	for _, t := range domain.ParseHLA(donorHLA) {
		donorCounts[t]++
	}
	matches := 0
	for _, t := range patientTokens {
		if donorCounts[t] > 0 {
			matches++
			donorCounts[t]--
		}
	}
	raw := float64(matches) / float64(len(patientTokens)) * 100
	if raw > 100 {
		raw = 100
	}
	return raw
}

// waitlistScore ramps linearly with days waited, capped at 30 days.
func waitlistScore(createdAt, now time.Time) float64 {
	days := now.Sub(createdAt).Hours() / 24
	if days <= 0 {
		return 0
	}
	if days >= waitlistCapDays {
		return 100
	}
	return days / waitlistCapDays * 100
}

// RankedCandidate pairs a donor with its compatibility breakdown for one
// patient.
type RankedCandidate struct {
	Donor     domain.Donor `json:"donor"`
	Breakdown Breakdown    `json:"breakdown"`
}

// RankCandidates scores every donor against the patient and orders the
// result: eligible pairs first, then descending total. The sort is stable,
// so ties keep the repository's listing order.
func RankCandidates(patient domain.Patient, donors []domain.Donor, now time.Time) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(donors))
	for _, d := range donors {
		ranked = append(ranked, RankedCandidate{Donor: d, Breakdown: Score(patient, d, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Breakdown, ranked[j].Breakdown
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		return a.Total > b.Total
	})
	return ranked
}
