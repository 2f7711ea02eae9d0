package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseBloodType(t *testing.T) {
	for _, bt := range BloodTypes {
		got, err := ParseBloodType(string(bt))
		if err != nil {
			t.Fatalf("ParseBloodType(%s): %v", bt, err)
		}
		if got != bt {
			t.Fatalf("ParseBloodType(%s) = %s", bt, got)
		}
	}
	if _, err := ParseBloodType("C+"); err == nil {
		t.Fatalf("expected error for unknown blood type")
	}
	var invalid InvalidArgumentError
	_, err := ParseBloodType("o+")
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
	if invalid.Field != "bloodType" {
		t.Fatalf("unexpected field %q", invalid.Field)
	}
}

func TestParseOrganAndStatus(t *testing.T) {
	if _, err := ParseOrgan("Kidney"); err != nil {
		t.Fatalf("ParseOrgan: %v", err)
	}
	if _, err := ParseOrgan("Spleen"); err == nil {
		t.Fatalf("expected error for unknown organ")
	}
	if _, err := ParsePatientStatus("WAITING"); err != nil {
		t.Fatalf("ParsePatientStatus: %v", err)
	}
	if PatientStatus("waiting").Valid() {
		t.Fatalf("lowercase status must be invalid")
	}
	if !VerificationVerified.Valid() || VerificationStatus("MAYBE").Valid() {
		t.Fatalf("verification status validity broken")
	}
	if !MatchPending.Valid() || MatchStatus("DONE").Valid() {
		t.Fatalf("match status validity broken")
	}
}

func TestParseHLA(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"A2, A24, B35", []string{"A2", "A24", "B35"}},
		{" A2 ,,  B35 ", []string{"A2", "B35"}},
		{"", nil},
		{" , , ", nil},
	}
	for _, tc := range cases {
		got := ParseHLA(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseHLA(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestKeyPrefix(t *testing.T) {
	cases := map[EntityType]string{
		EntityPatient:  "PAT-",
		EntityDonor:    "DON-",
		EntityHospital: "HOSP-",
		EntityMatch:    "MATCH-",
	}
	for entity, want := range cases {
		if got := KeyPrefix(entity); got != want {
			t.Fatalf("KeyPrefix(%s) = %q, want %q", entity, got, want)
		}
	}
	if got := KeyPrefix("unknown"); got != "" {
		t.Fatalf("KeyPrefix(unknown) = %q", got)
	}
	for _, prefix := range cases {
		if !(prefix < KeySentinel) {
			t.Fatalf("sentinel must sort after prefix %q", prefix)
		}
	}
}

func TestHospitalProfileOmitsCredential(t *testing.T) {
	h := Hospital{ID: "HOSP-X", Name: "X", Location: "Y", CredentialHash: "deadbeef", IsActive: true}
	raw, err := json.Marshal(h.Profile())
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	if strings.Contains(string(raw), "deadbeef") || strings.Contains(string(raw), "credential") {
		t.Fatalf("profile leaked credential material: %s", raw)
	}
}

func TestDonorHasOrgan(t *testing.T) {
	d := Donor{OrgansAvailable: []Organ{OrganKidney, OrganLiver}}
	if !d.HasOrgan(OrganKidney) {
		t.Fatalf("expected Kidney present")
	}
	if d.HasOrgan(OrganHeart) {
		t.Fatalf("Heart must be absent")
	}
}

func TestErrorHelpers(t *testing.T) {
	if !IsNotFound(NotFoundError{Entity: EntityPatient, ID: "PAT-1"}) {
		t.Fatalf("IsNotFound failed")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatalf("IsNotFound matched unrelated error")
	}
	if !IsAlreadyExists(AlreadyExistsError{Entity: EntityDonor, ID: "DON-1"}) {
		t.Fatalf("IsAlreadyExists failed")
	}
	reason, ok := IsNotEligible(NotEligibleError{Reason: ReasonBloodMismatch})
	if !ok || reason != ReasonBloodMismatch {
		t.Fatalf("IsNotEligible = %v, %v", reason, ok)
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var r Result
	r.Merge(Result{})
	if r.HasBlocking() {
		t.Fatalf("empty result must not block")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if r.HasBlocking() {
		t.Fatalf("warn must not block")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !r.HasBlocking() {
		t.Fatalf("block severity must block")
	}
	if len(r.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(r.Violations))
	}
}
