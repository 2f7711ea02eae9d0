package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"organcore/internal/blob"
	"organcore/internal/infra/persistence/memory"
	"organcore/pkg/domain"
)

type serviceFixture struct {
	svc   *Service
	store *memory.Store
	blobs blob.Store
	audit *MemoryAuditRecorder
}

// newFixture wires a service over a fresh in-memory store. Records are
// stamped 30 days before the service clock, so freshly created patients
// score a full waitlist component.
func newFixture(t *testing.T) serviceFixture {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return scoreNow.AddDate(0, 0, -30) })
	blobs := blob.NewMemory()
	audit := NewMemoryAuditRecorder()
	var seq atomic.Int64
	svc := NewService(store,
		WithClock(ClockFunc(func() time.Time { return scoreNow })),
		WithBlobStore(blobs),
		WithAuditRecorder(audit),
		WithMetricsRecorder(NewExpvarMetricsRecorder()),
		WithIDGenerator(func() string {
			return fmt.Sprintf("%08d", seq.Add(1))
		}),
	)
	return serviceFixture{svc: svc, store: store, blobs: blobs, audit: audit}
}

func (f serviceFixture) seedAllocationPair(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RegisterHospital(ctx, NewHospital{ID: "HOSP-APOLLO", Name: "Apollo", Location: "Mumbai", Credential: "apollo123", IsActive: true}); err != nil {
		t.Fatalf("register hospital: %v", err)
	}
	if _, err := f.svc.RegisterPatient(ctx, NewPatient{
		ID: "PAT-001", Name: "patient one", BloodType: "A+",
		HLA: "A2, A24, B35, B44, DR1, DR4", OrganNeeded: "Kidney", HospitalID: "HOSP-APOLLO",
	}); err != nil {
		t.Fatalf("register patient: %v", err)
	}
	if _, err := f.svc.RegisterDonor(ctx, NewDonor{
		ID: "DON-101", Name: "donor one", BloodType: "O-",
		HLA: "A2, A24, B35, B44, DR1, DR4", Organs: []string{"Kidney", "Liver"},
	}); err != nil {
		t.Fatalf("register donor: %v", err)
	}
	if _, err := f.svc.DecideDonorVerification(ctx, "DON-101", "HOSP-APOLLO", "VERIFIED"); err != nil {
		t.Fatalf("verify donor: %v", err)
	}
}

func TestRegisterPatientValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RegisterPatient(ctx, NewPatient{BloodType: "X+", OrganNeeded: "Kidney"}); err == nil {
		t.Fatalf("bad blood type accepted")
	}
	if _, err := f.svc.RegisterPatient(ctx, NewPatient{ID: "DON-5", BloodType: "A+", OrganNeeded: "Kidney"}); err == nil {
		t.Fatalf("wrong prefix accepted")
	}

	created, err := f.svc.RegisterPatient(ctx, NewPatient{Name: "jane roe", BloodType: "A+", OrganNeeded: "Kidney", HospitalID: "HOSP-X"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(created.ID, "PAT-") {
		t.Fatalf("generated ID %q", created.ID)
	}
	if created.Status != domain.PatientWaiting {
		t.Fatalf("initial status %s", created.Status)
	}
	if created.NameHash == "" || strings.Contains(created.NameHash, "jane") {
		t.Fatalf("name not hashed: %q", created.NameHash)
	}

	if _, err := f.svc.RegisterPatient(ctx, NewPatient{ID: created.ID, Name: "x", BloodType: "A+", OrganNeeded: "Kidney"}); !domain.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRegisterDonorRequiresOrgans(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterDonor(context.Background(), NewDonor{BloodType: "O-"})
	if err == nil {
		t.Fatalf("empty organ offer accepted")
	}
}

func TestRegisterPatientStoresAttachmentOffChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.RegisterPatient(ctx, NewPatient{
		Name: "x", BloodType: "A+", OrganNeeded: "Kidney",
		Attachment: map[string]string{"scan": "mri-2026-05"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(created.OffChainRef, "sha256:") {
		t.Fatalf("off-chain ref %q", created.OffChainRef)
	}
	var payload map[string]string
	if err := blob.GetJSON(ctx, f.blobs, created.OffChainRef, &payload); err != nil {
		t.Fatalf("resolve ref: %v", err)
	}
	if payload["scan"] != "mri-2026-05" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestAuthenticateHospital(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.svc.RegisterHospital(ctx, NewHospital{ID: "HOSP-CLOSED", Name: "Closed", Credential: "secret", IsActive: false}); err != nil {
		t.Fatalf("register: %v", err)
	}

	profile, err := f.svc.AuthenticateHospital(ctx, "HOSP-APOLLO", HashCredential("apollo123"))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if profile.ID != "HOSP-APOLLO" || !profile.IsActive {
		t.Fatalf("profile = %+v", profile)
	}

	failures := []struct {
		name, hospital, credential string
	}{
		{"wrong credential", "HOSP-APOLLO", "wrong"},
		{"unknown hospital", "HOSP-NOPE", "apollo123"},
		{"inactive hospital", "HOSP-CLOSED", "secret"},
	}
	var messages []string
	for _, tc := range failures {
		_, err := f.svc.AuthenticateHospital(ctx, tc.hospital, HashCredential(tc.credential))
		if err == nil {
			t.Fatalf("%s: authentication succeeded", tc.name)
		}
		messages = append(messages, err.Error())
	}
	// the rejection must not reveal which precondition failed
	if messages[0] != messages[1] || messages[1] != messages[2] {
		t.Fatalf("auth errors differ: %v", messages)
	}

	// raw plaintext on the hash boundary must also fail
	if _, err := f.svc.AuthenticateHospital(ctx, "HOSP-APOLLO", "apollo123"); err == nil {
		t.Fatalf("plaintext accepted as credential hash")
	}
}

func TestDecideDonorVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)

	donor, err := f.svc.GetDonor(ctx, "DON-101")
	if err != nil {
		t.Fatalf("get donor: %v", err)
	}
	if donor.VerificationStatus != domain.VerificationVerified || donor.VerifiedBy != "HOSP-APOLLO" {
		t.Fatalf("donor = %+v", donor)
	}

	if _, err := f.svc.DecideDonorVerification(ctx, "DON-101", "HOSP-APOLLO", "MAYBE"); err == nil {
		t.Fatalf("invalid decision accepted")
	}
	if _, err := f.svc.DecideDonorVerification(ctx, "DON-404", "HOSP-APOLLO", "VERIFIED"); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.svc.DecideDonorVerification(ctx, "DON-101", "HOSP-NOPE", "VERIFIED"); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown hospital, got %v", err)
	}
}

func TestVerificationReDecisionIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)

	donor, err := f.svc.DecideDonorVerification(ctx, "DON-101", "HOSP-APOLLO", "REJECTED")
	if err != nil {
		t.Fatalf("re-decide: %v", err)
	}
	if donor.VerificationStatus != domain.VerificationRejected {
		t.Fatalf("status = %s", donor.VerificationStatus)
	}

	var noted bool
	for _, entry := range f.audit.Entries() {
		if entry.Operation == "DecideDonorVerification" && strings.Contains(entry.Note, "re-decision") {
			noted = true
			if !strings.Contains(entry.Note, "VERIFIED") {
				t.Fatalf("note misses prior outcome: %q", entry.Note)
			}
		}
	}
	if !noted {
		t.Fatalf("re-decision missing from audit trail: %+v", f.audit.Entries())
	}
}

func TestAllocateFullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)

	match, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !strings.HasPrefix(match.ID, "MATCH-") {
		t.Fatalf("match ID %q", match.ID)
	}
	if match.Status != domain.MatchPending || match.OrganType != domain.OrganKidney || match.ApprovedBy != "HOSP-APOLLO" {
		t.Fatalf("match = %+v", match)
	}
	if !almostEqual(match.HLAScore, 90) {
		t.Fatalf("score = %v, want 90", match.HLAScore)
	}

	patient, err := f.svc.GetPatient(ctx, "PAT-001")
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if patient.Status != domain.PatientMatched {
		t.Fatalf("patient status %s", patient.Status)
	}

	donor, err := f.svc.GetDonor(ctx, "DON-101")
	if err != nil {
		t.Fatalf("get donor: %v", err)
	}
	if donor.HasOrgan(domain.OrganKidney) || !donor.HasOrgan(domain.OrganLiver) {
		t.Fatalf("organ set = %v", donor.OrgansAvailable)
	}

	matches, err := f.svc.ListMatches(ctx)
	if err != nil || len(matches) != 1 {
		t.Fatalf("matches = %v, %v", matches, err)
	}
}

func TestAllocateConsumedOrganFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.RegisterPatient(ctx, NewPatient{
		ID: "PAT-002", Name: "patient two", BloodType: "A+",
		HLA: "A2, A24", OrganNeeded: "Kidney", HospitalID: "HOSP-APOLLO",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO"); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	_, err := f.svc.Allocate(ctx, "PAT-002", "DON-101", "HOSP-APOLLO")
	reason, ok := domain.IsNotEligible(err)
	if !ok || reason != domain.ReasonOrganUnavailable {
		t.Fatalf("expected NotEligible(OrganUnavailable), got %v", err)
	}

	// the consumed organ also disappears from matching
	ranked, err := f.svc.RunMatching(ctx, "PAT-002")
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	for _, c := range ranked {
		if c.Donor.ID == "DON-101" && c.Breakdown.Eligible {
			t.Fatalf("consumed donor still eligible")
		}
	}
}

func TestConcurrentAllocateSingleOrganDonor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.RegisterPatient(ctx, NewPatient{
		ID: "PAT-002", Name: "patient two", BloodType: "A+",
		HLA: "A2, A24", OrganNeeded: "Kidney", HospitalID: "HOSP-APOLLO",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.RegisterDonor(ctx, NewDonor{
		ID: "DON-201", Name: "single kidney", BloodType: "O-",
		HLA: "A2, A24", Organs: []string{"Kidney"},
	}); err != nil {
		t.Fatalf("register donor: %v", err)
	}
	if _, err := f.svc.DecideDonorVerification(ctx, "DON-201", "HOSP-APOLLO", "VERIFIED"); err != nil {
		t.Fatalf("verify donor: %v", err)
	}

	patients := []string{"PAT-001", "PAT-002"}
	errs := make([]error, len(patients))
	var wg sync.WaitGroup
	for i, patient := range patients {
		wg.Add(1)
		go func(i int, patient string) {
			defer wg.Done()
			_, errs[i] = f.svc.Allocate(ctx, patient, "DON-201", "HOSP-APOLLO")
		}(i, patient)
	}
	wg.Wait()

	successes := 0
	var loser error
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			loser = err
		}
	}
	if successes != 1 {
		t.Fatalf("allocations succeeded = %d, want exactly 1 (errs: %v)", successes, errs)
	}
	reason, ok := domain.IsNotEligible(loser)
	if !ok || reason != domain.ReasonOrganUnavailable {
		t.Fatalf("expected NotEligible(OrganUnavailable), got %v", loser)
	}

	donor, err := f.svc.GetDonor(ctx, "DON-201")
	if err != nil {
		t.Fatalf("get donor: %v", err)
	}
	if len(donor.OrgansAvailable) != 0 {
		t.Fatalf("kidney allocated twice or not at all: %v", donor.OrgansAvailable)
	}
	matches, err := f.svc.ListMatches(ctx)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestAllocateRequiresWaitingPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.SetPatientStatus(ctx, "PAT-001", "DECEASED"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO"); err == nil {
		t.Fatalf("allocation for non-waiting patient accepted")
	}
}

func TestAllocateUnverifiedDonorFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.RegisterDonor(ctx, NewDonor{
		ID: "DON-102", Name: "pending", BloodType: "O-", Organs: []string{"Kidney"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := f.svc.Allocate(ctx, "PAT-001", "DON-102", "HOSP-APOLLO")
	reason, ok := domain.IsNotEligible(err)
	if !ok || reason != domain.ReasonNotVerified {
		t.Fatalf("expected NotEligible(NotVerified), got %v", err)
	}
}

func TestRunMatchingRanksSeededDonors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ranked, err := f.svc.RunMatching(ctx, "PAT-001")
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked %d donors", len(ranked))
	}
	if ranked[0].Donor.ID != "DON-101" || !ranked[0].Breakdown.Eligible {
		t.Fatalf("top candidate = %+v", ranked[0])
	}
	if ranked[1].Breakdown.Eligible {
		t.Fatalf("pending donor must be ineligible")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Seed(ctx); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := f.svc.Seed(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	hospitals, err := f.svc.ListHospitals(ctx)
	if err != nil || len(hospitals) != 3 {
		t.Fatalf("hospitals = %v, %v", hospitals, err)
	}
}

func TestRemoveDonorOrgan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)

	donor, err := f.svc.RemoveDonorOrgan(ctx, "DON-101", "Liver")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if donor.HasOrgan(domain.OrganLiver) {
		t.Fatalf("organ still offered: %v", donor.OrgansAvailable)
	}
	if _, err := f.svc.RemoveDonorOrgan(ctx, "DON-101", "Liver"); err == nil {
		t.Fatalf("removing an absent organ accepted")
	}
}

func TestClearAllWipesAndArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	summary, err := f.svc.ClearAll(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if summary.Patients != 1 || summary.Donors != 1 || summary.Matches != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ArchiveRefs == "" {
		t.Fatalf("clear did not archive off-chain")
	}
	for _, ref := range strings.Split(summary.ArchiveRefs, ",") {
		var archived []domain.KV
		if err := blob.GetJSON(ctx, f.blobs, ref, &archived); err != nil {
			t.Fatalf("resolve archive %s: %v", ref, err)
		}
		if len(archived) == 0 {
			t.Fatalf("empty archive %s", ref)
		}
	}

	hospitals, err := f.svc.ListHospitals(ctx)
	if err != nil || len(hospitals) != 1 {
		t.Fatalf("hospitals must survive clear: %v, %v", hospitals, err)
	}
	patients, err := f.svc.ListPatients(ctx)
	if err != nil || len(patients) != 0 {
		t.Fatalf("patients = %v, %v", patients, err)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAllocationPair(t)
	if _, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := f.svc.Allocate(ctx, "PAT-001", "DON-101", "HOSP-APOLLO"); err == nil {
		t.Fatalf("second allocate must fail")
	}

	byOp := map[string][]AuditEntry{}
	for _, e := range f.audit.Entries() {
		byOp[e.Operation] = append(byOp[e.Operation], e)
	}
	for _, op := range []string{"RegisterHospital", "RegisterPatient", "RegisterDonor", "DecideDonorVerification", "Allocate"} {
		if len(byOp[op]) == 0 {
			t.Fatalf("operation %s missing from audit trail", op)
		}
	}
	allocs := byOp["Allocate"]
	if len(allocs) != 2 {
		t.Fatalf("allocate audited %d times", len(allocs))
	}
	if allocs[0].Status != AuditStatusSuccess || allocs[1].Status != AuditStatusError {
		t.Fatalf("allocate statuses = %s, %s", allocs[0].Status, allocs[1].Status)
	}
	if allocs[1].Error == "" {
		t.Fatalf("failed allocation entry carries no error")
	}
	if !allocs[0].Timestamp.Equal(scoreNow) {
		t.Fatalf("audit timestamp = %v, want service clock", allocs[0].Timestamp)
	}
}

func TestListHospitalsNeverLeaksCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	profiles, err := f.svc.ListHospitals(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range profiles {
		if p.ID == "" || p.Name == "" {
			t.Fatalf("incomplete profile %+v", p)
		}
	}
}
