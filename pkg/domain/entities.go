// Package domain defines the persistent registry records, value types, and
// rule evaluation primitives used by organcore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in Change records and key prefixes.
const (
	// EntityPatient identifies a patient waiting-list record.
	EntityPatient EntityType = "patient"
	// EntityDonor identifies an organ donor record.
	EntityDonor EntityType = "donor"
	// EntityHospital identifies a registered hospital record.
	EntityHospital EntityType = "hospital"
	// EntityMatch identifies a patient-donor match record.
	EntityMatch EntityType = "match"
)

// Key prefixes partition the flat world-state keyspace by entity class.
// KeySentinel bounds a prefix range scan: "~" sorts after every valid ID
// suffix, so [prefix, prefix+KeySentinel) covers exactly one class.
const (
	KeyPrefixPatient  = "PAT-"
	KeyPrefixDonor    = "DON-"
	KeyPrefixHospital = "HOSP-"
	KeyPrefixMatch    = "MATCH-"
	KeySentinel       = "~"
)

// KeyPrefix returns the world-state key prefix for an entity type.
func KeyPrefix(entity EntityType) string {
	switch entity {
	case EntityPatient:
		return KeyPrefixPatient
	case EntityDonor:
		return KeyPrefixDonor
	case EntityHospital:
		return KeyPrefixHospital
	case EntityMatch:
		return KeyPrefixMatch
	default:
		return ""
	}
}

// BloodType enumerates the eight ABO/Rh groups.
type BloodType string

// Canonical ABO/Rh blood groups.
const (
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
)

// BloodTypes lists every valid group in a stable order.
var BloodTypes = []BloodType{
	BloodOPos, BloodONeg, BloodAPos, BloodANeg,
	BloodBPos, BloodBNeg, BloodABPos, BloodABNeg,
}

// ParseBloodType validates a wire value against the closed enum.
func ParseBloodType(s string) (BloodType, error) {
	for _, bt := range BloodTypes {
		if string(bt) == s {
			return bt, nil
		}
	}
	return "", InvalidArgumentError{Field: "bloodType", Value: s}
}

// Organ enumerates transplantable organ types tracked by the registry.
type Organ string

// Canonical organ types.
const (
	OrganKidney   Organ = "Kidney"
	OrganLiver    Organ = "Liver"
	OrganHeart    Organ = "Heart"
	OrganLung     Organ = "Lung"
	OrganPancreas Organ = "Pancreas"
	OrganCornea   Organ = "Cornea"
)

// Organs lists every valid organ type in a stable order.
var Organs = []Organ{OrganKidney, OrganLiver, OrganHeart, OrganLung, OrganPancreas, OrganCornea}

// ParseOrgan validates a wire value against the closed enum.
func ParseOrgan(s string) (Organ, error) {
	for _, o := range Organs {
		if string(o) == s {
			return o, nil
		}
	}
	return "", InvalidArgumentError{Field: "organ", Value: s}
}

// PatientStatus enumerates patient waiting-list states.
type PatientStatus string

// Canonical patient statuses. WAITING to MATCHED happens only through a
// successful allocation; the terminal states are set administratively.
const (
	PatientWaiting      PatientStatus = "WAITING"
	PatientMatched      PatientStatus = "MATCHED"
	PatientTransplanted PatientStatus = "TRANSPLANTED"
	PatientDeceased     PatientStatus = "DECEASED"
)

// PatientStatuses lists every valid patient status.
var PatientStatuses = []PatientStatus{PatientWaiting, PatientMatched, PatientTransplanted, PatientDeceased}

// ParsePatientStatus validates a wire value against the closed enum.
func ParsePatientStatus(s string) (PatientStatus, error) {
	for _, st := range PatientStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", InvalidArgumentError{Field: "status", Value: s}
}

// Valid reports whether the status is a member of the closed enum.
func (s PatientStatus) Valid() bool {
	_, err := ParsePatientStatus(string(s))
	return err == nil
}

// VerificationStatus enumerates the donor verification gate states.
type VerificationStatus string

// Donor verification states. Only VERIFIED donors are allocation candidates.
const (
	VerificationPending  VerificationStatus = "PENDING_VERIFICATION"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// VerificationStatuses lists every valid verification state.
var VerificationStatuses = []VerificationStatus{VerificationPending, VerificationVerified, VerificationRejected}

// ParseVerificationStatus validates a wire value against the closed enum.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	for _, st := range VerificationStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", InvalidArgumentError{Field: "verificationStatus", Value: s}
}

// Valid reports whether the status is a member of the closed enum.
func (s VerificationStatus) Valid() bool {
	_, err := ParseVerificationStatus(string(s))
	return err == nil
}

// MatchStatus annotates a match record. Matches are create-once; the status
// is informational, not state-machine-driven.
type MatchStatus string

// Match record statuses.
const (
	MatchPending   MatchStatus = "PENDING"
	MatchConfirmed MatchStatus = "CONFIRMED"
)

// MatchStatuses lists every valid match status.
var MatchStatuses = []MatchStatus{MatchPending, MatchConfirmed}

// Valid reports whether the status is a member of the closed enum.
func (s MatchStatus) Valid() bool {
	for _, st := range MatchStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Patient describes a patient waiting for an organ transplant.
type Patient struct {
	ID          string        `json:"id"`
	NameHash    string        `json:"nameHash"`
	BloodType   BloodType     `json:"bloodType"`
	HLA         string        `json:"hla"`
	OrganNeeded Organ         `json:"organNeeded"`
	Status      PatientStatus `json:"status"`
	HospitalID  string        `json:"hospitalId"`
	OffChainRef string        `json:"offChainRef"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Donor describes an organ donor. OrgansAvailable is never nil: an empty
// set means fully allocated.
type Donor struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone"`
	BloodType          BloodType          `json:"bloodType"`
	HLA                string             `json:"hla"`
	OrgansAvailable    []Organ            `json:"organsAvailable"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerifiedBy         string             `json:"verifiedBy"`
	OffChainRef        string             `json:"offChainRef"`
	ConsentRef         string             `json:"consentRef"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// HasOrgan reports whether the donor still offers the given organ.
func (d Donor) HasOrgan(organ Organ) bool {
	for _, o := range d.OrgansAvailable {
		if o == organ {
			return true
		}
	}
	return false
}

// Hospital describes a registered hospital identity.
type Hospital struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	CredentialHash string    `json:"credentialHash"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Profile strips credential material for callers. Bulk listings and
// authentication responses must only ever expose this view.
func (h Hospital) Profile() HospitalProfile {
	return HospitalProfile{ID: h.ID, Name: h.Name, Location: h.Location, IsActive: h.IsActive}
}

// HospitalProfile is the credential-free public view of a hospital.
type HospitalProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	IsActive bool   `json:"isActive"`
}

// Match records an approved patient-donor pairing. Create-once, append-only.
type Match struct {
	ID         string      `json:"id"`
	PatientID  string      `json:"patientId"`
	DonorID    string      `json:"donorId"`
	OrganType  Organ       `json:"organType"`
	HLAScore   float64     `json:"hlaScore"`
	Status     MatchStatus `json:"status"`
	ApprovedBy string      `json:"approvedBy"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// ParseHLA splits a free-text antigen list into trimmed tokens. Empty
// tokens are dropped.
func ParseHLA(hla string) []string {
	parts := strings.Split(hla, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation
// and audit.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was replaced.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
