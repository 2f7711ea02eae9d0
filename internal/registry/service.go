// Package registry implements the organ registry service: typed entity
// storage over a transactional world state, the donor verification gate,
// compatibility scoring and allocation.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"organcore/internal/blob"
	"organcore/pkg/domain"
)

// Service is the public façade over the registry. All mutating operations
// run inside a single store transaction, so the commit-time rules engine
// sees each operation's complete change set.
type Service struct {
	store   domain.RecordStore
	blobs   blob.Store
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	newID   func() string
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder installs an audit trail sink.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer installs a tracer around service operations.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the wall clock, used by tests to pin wait-time
// scoring.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBlobStore installs an off-chain blob store. Registration payloads and
// clear-operation archives are written there; without one the off-chain
// pointer fields stay empty unless supplied by the caller.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

// WithIDGenerator overrides generated ID suffixes, used by tests for
// deterministic match IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a Service over the given record store.
func NewService(store domain.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   ClockFunc(time.Now),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type auditShape struct {
	entity domain.EntityType
	action domain.Action
}

var auditOperations = map[string]auditShape{
	"RegisterPatient":         {domain.EntityPatient, domain.ActionCreate},
	"RegisterDonor":           {domain.EntityDonor, domain.ActionCreate},
	"RegisterHospital":        {domain.EntityHospital, domain.ActionCreate},
	"DecideDonorVerification": {domain.EntityDonor, domain.ActionUpdate},
	"Allocate":                {domain.EntityMatch, domain.ActionCreate},
	"SetPatientStatus":        {domain.EntityPatient, domain.ActionUpdate},
	"RemoveDonorOrgan":        {domain.EntityDonor, domain.ActionUpdate},
	"ClearAll":                {domain.EntityMatch, domain.ActionDelete},
}

// begin starts instrumentation for one operation. The returned finish
// function ends the span, records metrics and, for operations in the audit
// map, emits an audit entry.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(entityID, note string, err error)) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	return ctx, func(entityID, note string, err error) {
		duration := time.Since(start)
		span.End(err)
		s.metrics.Observe(ctx, op, err == nil, duration)
		if err != nil {
			s.logger.Error("operation failed", "op", op, "entity_id", entityID, "error", err)
		} else {
			s.logger.Debug("operation completed", "op", op, "entity_id", entityID, "duration", duration)
		}
		shape, audited := auditOperations[op]
		if !audited {
			return
		}
		entry := AuditEntry{
			Operation: op,
			Entity:    shape.entity,
			Action:    shape.action,
			EntityID:  entityID,
			Status:    AuditStatusSuccess,
			Note:      note,
			Duration:  duration,
			Timestamp: s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}
}

// HashName returns the hex sha256 digest stored in place of a patient name.
func HashName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// NewPatient carries a patient registration request. A zero ID gets a
// generated PAT- key. Name is hashed before persisting; Attachment, when
// present and a blob store is configured, is stored off-chain and its
// reference replaces OffChainRef.
type NewPatient struct {
	ID          string
	Name        string
	BloodType   string
	HLA         string
	OrganNeeded string
	HospitalID  string
	OffChainRef string
	Attachment  any
}

// RegisterPatient creates a patient in WAITING state.
func (s *Service) RegisterPatient(ctx context.Context, in NewPatient) (domain.Patient, error) {
	ctx, finish := s.begin(ctx, "RegisterPatient")
	patient, err := s.registerPatient(ctx, in)
	finish(patient.ID, "", err)
	return patient, err
}

func (s *Service) registerPatient(ctx context.Context, in NewPatient) (domain.Patient, error) {
	id, err := s.entityID(in.ID, domain.KeyPrefixPatient)
	if err != nil {
		return domain.Patient{}, err
	}
	bloodType, err := domain.ParseBloodType(in.BloodType)
	if err != nil {
		return domain.Patient{}, err
	}
	organ, err := domain.ParseOrgan(in.OrganNeeded)
	if err != nil {
		return domain.Patient{}, err
	}
	offChain, err := s.storeAttachment(ctx, in.Attachment, in.OffChainRef)
	if err != nil {
		return domain.Patient{}, err
	}

	patient := domain.Patient{
		ID:          id,
		NameHash:    HashName(in.Name),
		BloodType:   bloodType,
		HLA:         in.HLA,
		OrganNeeded: organ,
		Status:      domain.PatientWaiting,
		HospitalID:  in.HospitalID,
		OffChainRef: offChain,
	}
	err = s.run(ctx, func(repo Repository) error {
		created, err := repo.CreatePatient(patient)
		if err != nil {
			return err
		}
		patient = created
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}
	return patient, nil
}

// NewDonor carries a donor registration request. Donors start
// PENDING_VERIFICATION with at least one organ offered.
type NewDonor struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	BloodType   string
	HLA         string
	Organs      []string
	OffChainRef string
	ConsentRef  string
	Attachment  any
	Consent     any
}

// RegisterDonor creates a donor awaiting verification.
func (s *Service) RegisterDonor(ctx context.Context, in NewDonor) (domain.Donor, error) {
	ctx, finish := s.begin(ctx, "RegisterDonor")
	donor, err := s.registerDonor(ctx, in)
	finish(donor.ID, "", err)
	return donor, err
}

func (s *Service) registerDonor(ctx context.Context, in NewDonor) (domain.Donor, error) {
	id, err := s.entityID(in.ID, domain.KeyPrefixDonor)
	if err != nil {
		return domain.Donor{}, err
	}
	bloodType, err := domain.ParseBloodType(in.BloodType)
	if err != nil {
		return domain.Donor{}, err
	}
	if len(in.Organs) == 0 {
		return domain.Donor{}, domain.InvalidArgumentError{Field: "organs", Value: "empty"}
	}
	organs := make([]domain.Organ, 0, len(in.Organs))
	for _, raw := range in.Organs {
		organ, err := domain.ParseOrgan(raw)
		if err != nil {
			return domain.Donor{}, err
		}
		organs = append(organs, organ)
	}
	offChain, err := s.storeAttachment(ctx, in.Attachment, in.OffChainRef)
	if err != nil {
		return domain.Donor{}, err
	}
	consent, err := s.storeAttachment(ctx, in.Consent, in.ConsentRef)
	if err != nil {
		return domain.Donor{}, err
	}

	donor := domain.Donor{
		ID:                 id,
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		BloodType:          bloodType,
		HLA:                in.HLA,
		OrgansAvailable:    organs,
		VerificationStatus: domain.VerificationPending,
		OffChainRef:        offChain,
		ConsentRef:         consent,
	}
	err = s.run(ctx, func(repo Repository) error {
		created, err := repo.CreateDonor(donor)
		if err != nil {
			return err
		}
		donor = created
		return nil
	})
	if err != nil {
		return domain.Donor{}, err
	}
	return donor, nil
}

// NewHospital carries a hospital registration request. The plaintext
// credential is hashed before persisting.
type NewHospital struct {
	ID         string
	Name       string
	Location   string
	Credential string
	IsActive   bool
}

// RegisterHospital creates a hospital identity.
func (s *Service) RegisterHospital(ctx context.Context, in NewHospital) (domain.HospitalProfile, error) {
	ctx, finish := s.begin(ctx, "RegisterHospital")
	profile, err := s.registerHospital(ctx, in)
	finish(profile.ID, "", err)
	return profile, err
}

func (s *Service) registerHospital(ctx context.Context, in NewHospital) (domain.HospitalProfile, error) {
	id, err := s.entityID(in.ID, domain.KeyPrefixHospital)
	if err != nil {
		return domain.HospitalProfile{}, err
	}
	if in.Credential == "" {
		return domain.HospitalProfile{}, domain.InvalidArgumentError{Field: "credential", Value: "empty"}
	}
	hospital := domain.Hospital{
		ID:             id,
		Name:           in.Name,
		Location:       in.Location,
		CredentialHash: HashCredential(in.Credential),
		IsActive:       in.IsActive,
	}
	err = s.run(ctx, func(repo Repository) error {
		created, err := repo.CreateHospital(hospital)
		if err != nil {
			return err
		}
		hospital = created
		return nil
	})
	if err != nil {
		return domain.HospitalProfile{}, err
	}
	return hospital.Profile(), nil
}

// GetPatient returns a patient by ID.
func (s *Service) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	ctx, finish := s.begin(ctx, "GetPatient")
	var patient domain.Patient
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		patient, err = repo.GetPatient(id)
		return err
	})
	finish(id, "", err)
	return patient, err
}

// GetDonor returns a donor by ID.
func (s *Service) GetDonor(ctx context.Context, id string) (domain.Donor, error) {
	ctx, finish := s.begin(ctx, "GetDonor")
	var donor domain.Donor
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		donor, err = repo.GetDonor(id)
		return err
	})
	finish(id, "", err)
	return donor, err
}

// GetHospital returns a hospital's credential-free profile.
func (s *Service) GetHospital(ctx context.Context, id string) (domain.HospitalProfile, error) {
	ctx, finish := s.begin(ctx, "GetHospital")
	var hospital domain.Hospital
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		hospital, err = repo.GetHospital(id)
		return err
	})
	finish(id, "", err)
	if err != nil {
		return domain.HospitalProfile{}, err
	}
	return hospital.Profile(), nil
}

// ListPatients returns every patient in key order.
func (s *Service) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	ctx, finish := s.begin(ctx, "ListPatients")
	var patients []domain.Patient
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		patients, err = repo.ListPatients()
		return err
	})
	finish("", "", err)
	return patients, err
}

// ListDonors returns every donor in key order.
func (s *Service) ListDonors(ctx context.Context) ([]domain.Donor, error) {
	ctx, finish := s.begin(ctx, "ListDonors")
	var donors []domain.Donor
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		donors, err = repo.ListDonors()
		return err
	})
	finish("", "", err)
	return donors, err
}

// ListHospitals returns every hospital as a credential-free profile, in key
// order.
func (s *Service) ListHospitals(ctx context.Context) ([]domain.HospitalProfile, error) {
	ctx, finish := s.begin(ctx, "ListHospitals")
	var hospitals []domain.Hospital
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		hospitals, err = repo.ListHospitals()
		return err
	})
	finish("", "", err)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.HospitalProfile, 0, len(hospitals))
	for _, h := range hospitals {
		profiles = append(profiles, h.Profile())
	}
	return profiles, nil
}

// ListMatches returns every match in key order.
func (s *Service) ListMatches(ctx context.Context) ([]domain.Match, error) {
	ctx, finish := s.begin(ctx, "ListMatches")
	var matches []domain.Match
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		matches, err = repo.ListMatches()
		return err
	})
	finish("", "", err)
	return matches, err
}

// AuthenticateHospital checks a credential hash (HashCredential of the
// plaintext) and returns the public profile. The error never reveals
// whether the hospital exists, is inactive, or the hash was wrong.
func (s *Service) AuthenticateHospital(ctx context.Context, hospitalID, credentialHash string) (domain.HospitalProfile, error) {
	ctx, finish := s.begin(ctx, "AuthenticateHospital")
	var hospital domain.Hospital
	found := true
	err := s.view(ctx, func(repo ReadRepository) error {
		var err error
		hospital, err = repo.GetHospital(hospitalID)
		if domain.IsNotFound(err) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		finish(hospitalID, "", err)
		return domain.HospitalProfile{}, err
	}
	profile, err := authenticateHospital(hospital, found, credentialHash)
	finish(hospitalID, "", err)
	return profile, err
}

// DecideDonorVerification applies a VERIFIED or REJECTED decision by the
// given hospital. Re-deciding an already-decided donor is allowed; the
// audit entry then records the overridden outcome.
func (s *Service) DecideDonorVerification(ctx context.Context, donorID, hospitalID, decision string) (domain.Donor, error) {
	ctx, finish := s.begin(ctx, "DecideDonorVerification")
	var donor domain.Donor
	note := ""
	err := s.run(ctx, func(repo Repository) error {
		var err error
		donor, note, err = decideDonorVerification(repo, donorID, domain.VerificationStatus(decision), hospitalID)
		return err
	})
	if note != "" {
		s.logger.Warn("verification re-decision", "donor_id", donorID, "note", note)
	}
	finish(donorID, note, err)
	if err != nil {
		return domain.Donor{}, err
	}
	return donor, nil
}

// RunMatching scores every donor against the patient and returns the
// ranked list: eligible candidates first, descending total. Read-only.
func (s *Service) RunMatching(ctx context.Context, patientID string) ([]RankedCandidate, error) {
	ctx, finish := s.begin(ctx, "RunMatching")
	now := s.clock.Now()
	var ranked []RankedCandidate
	err := s.view(ctx, func(repo ReadRepository) error {
		patient, err := repo.GetPatient(patientID)
		if err != nil {
			return err
		}
		donors, err := repo.ListDonors()
		if err != nil {
			return err
		}
		ranked = RankCandidates(patient, donors, now)
		return nil
	})
	finish(patientID, "", err)
	return ranked, err
}

// Allocate matches a patient to a donor on behalf of an approving
// hospital. Eligibility is re-checked against fresh records inside the
// transaction, so a concurrently consumed organ surfaces as
// NotEligible(OrganUnavailable) rather than a double allocation.
func (s *Service) Allocate(ctx context.Context, patientID, donorID, hospitalID string) (domain.Match, error) {
	ctx, finish := s.begin(ctx, "Allocate")
	now := s.clock.Now()
	var match domain.Match
	err := s.run(ctx, func(repo Repository) error {
		if _, err := repo.GetHospital(hospitalID); err != nil {
			return err
		}
		var err error
		match, err = allocate(repo, patientID, donorID, hospitalID, now, s.newID)
		return err
	})
	finish(match.ID, fmt.Sprintf("patient=%s donor=%s", patientID, donorID), err)
	if err != nil {
		return domain.Match{}, err
	}
	return match, nil
}

// SetPatientStatus is the administrative status override. It bypasses the
// allocation flow, so callers own the WAITING to MATCHED discipline.
func (s *Service) SetPatientStatus(ctx context.Context, patientID, status string) (domain.Patient, error) {
	ctx, finish := s.begin(ctx, "SetPatientStatus")
	parsed, err := domain.ParsePatientStatus(status)
	if err != nil {
		finish(patientID, "", err)
		return domain.Patient{}, err
	}
	var patient domain.Patient
	err = s.run(ctx, func(repo Repository) error {
		current, err := repo.GetPatient(patientID)
		if err != nil {
			return err
		}
		current.Status = parsed
		patient, err = repo.UpdatePatient(current)
		return err
	})
	finish(patientID, string(parsed), err)
	if err != nil {
		return domain.Patient{}, err
	}
	return patient, nil
}

// RemoveDonorOrgan withdraws one organ from a donor's offer. The inventory
// rule keeps this shrink-only like any other donor mutation.
func (s *Service) RemoveDonorOrgan(ctx context.Context, donorID, organ string) (domain.Donor, error) {
	ctx, finish := s.begin(ctx, "RemoveDonorOrgan")
	parsed, err := domain.ParseOrgan(organ)
	if err != nil {
		finish(donorID, "", err)
		return domain.Donor{}, err
	}
	var donor domain.Donor
	err = s.run(ctx, func(repo Repository) error {
		current, err := repo.GetDonor(donorID)
		if err != nil {
			return err
		}
		if !current.HasOrgan(parsed) {
			return domain.InvalidArgumentError{Field: "organ", Value: organ}
		}
		current.OrgansAvailable = removeOrgan(current.OrgansAvailable, parsed)
		donor, err = repo.UpdateDonor(current)
		return err
	})
	finish(donorID, string(parsed), err)
	if err != nil {
		return domain.Donor{}, err
	}
	return donor, nil
}

// ClearSummary reports what an administrative wipe removed.
type ClearSummary struct {
	Patients    int    `json:"patients"`
	Donors      int    `json:"donors"`
	Matches     int    `json:"matches"`
	ArchiveRefs string `json:"archiveRefs,omitempty"`
}

// ClearAll wipes the patient, donor and match classes. Each class is
// cleared in its own transaction, so the wipe is atomic per class but not
// across classes. Hospitals survive. With a blob store configured the wiped
// records are archived off-chain first.
func (s *Service) ClearAll(ctx context.Context) (ClearSummary, error) {
	ctx, finish := s.begin(ctx, "ClearAll")
	summary, err := s.clearAll(ctx)
	finish("", fmt.Sprintf("patients=%d donors=%d matches=%d", summary.Patients, summary.Donors, summary.Matches), err)
	return summary, err
}

func (s *Service) clearAll(ctx context.Context) (ClearSummary, error) {
	var summary ClearSummary
	var refs []string
	classes := []struct {
		entity domain.EntityType
		count  *int
	}{
		{domain.EntityMatch, &summary.Matches},
		{domain.EntityPatient, &summary.Patients},
		{domain.EntityDonor, &summary.Donors},
	}
	for _, class := range classes {
		var wiped []domain.KV
		err := s.run(ctx, func(repo Repository) error {
			wiped = repo.ClearClass(class.entity)
			return nil
		})
		if err != nil {
			return summary, err
		}
		*class.count = len(wiped)
		if s.blobs != nil && len(wiped) > 0 {
			ref, err := blob.PutJSON(ctx, s.blobs, wiped)
			if err != nil {
				s.logger.Warn("clear archive failed", "entity", class.entity, "error", err)
				continue
			}
			refs = append(refs, ref)
		}
	}
	summary.ArchiveRefs = strings.Join(refs, ",")
	return summary, nil
}

// Seed loads the demo dataset: three hospitals, two waiting patients and
// two donors, one of them pre-verified. Existing records are left alone.
func (s *Service) Seed(ctx context.Context) error {
	ctx, finish := s.begin(ctx, "Seed")
	err := s.run(ctx, func(repo Repository) error {
		return seed(repo)
	})
	finish("", "", err)
	return err
}

func (s *Service) run(ctx context.Context, fn func(Repository) error) error {
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return fn(NewRepository(tx))
	})
	return err
}

func (s *Service) view(ctx context.Context, fn func(ReadRepository) error) error {
	return s.store.View(ctx, func(v domain.TransactionView) error {
		return fn(NewReadRepository(v))
	})
}

// entityID validates a caller-assigned ID against the class prefix, or
// generates one when absent.
func (s *Service) entityID(id, prefix string) (string, error) {
	if id == "" {
		return prefix + s.newID(), nil
	}
	if !strings.HasPrefix(id, prefix) || len(id) == len(prefix) {
		return "", domain.InvalidArgumentError{Field: "id", Value: id}
	}
	return id, nil
}

// storeAttachment writes payload off-chain when present, otherwise keeps
// the caller-supplied reference.
func (s *Service) storeAttachment(ctx context.Context, payload any, ref string) (string, error) {
	if payload == nil {
		return ref, nil
	}
	if s.blobs == nil {
		return "", domain.InvalidArgumentError{Field: "attachment", Value: "no blob store configured"}
	}
	return blob.PutJSON(ctx, s.blobs, payload)
}
