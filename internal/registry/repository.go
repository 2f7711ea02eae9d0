package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"organcore/pkg/domain"
)

// Repository provides typed CRUD over a world-state transaction. Records
// are stored as whole JSON documents under prefix-namespaced keys; every
// write replaces the full record.
type Repository struct {
	tx domain.Transaction
}

// NewRepository wraps a transaction with typed entity operations.
func NewRepository(tx domain.Transaction) Repository {
	return Repository{tx: tx}
}

// Exists reports whether any record occupies the given key. The point read
// is race-free within the enclosing transaction.
func (r Repository) Exists(id string) bool {
	_, ok := r.tx.Get(id)
	return ok
}

func putRecord[T any](tx domain.Transaction, id string, rec T) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	tx.Put(id, raw)
	return nil
}

func getRecord[T any](tx domain.Transaction, entity domain.EntityType, id string) (T, error) {
	var rec T
	if !strings.HasPrefix(id, domain.KeyPrefix(entity)) {
		return rec, domain.NotFoundError{Entity: entity, ID: id}
	}
	raw, ok := tx.Get(id)
	if !ok {
		return rec, domain.NotFoundError{Entity: entity, ID: id}
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}

// CreatePatient stores a new patient, failing when the ID is taken.
func (r Repository) CreatePatient(p domain.Patient) (domain.Patient, error) {
	if r.Exists(p.ID) {
		return domain.Patient{}, domain.AlreadyExistsError{Entity: domain.EntityPatient, ID: p.ID}
	}
	p.CreatedAt = r.tx.Now()
	if err := putRecord(r.tx, p.ID, p); err != nil {
		return domain.Patient{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: p})
	return p, nil
}

// GetPatient retrieves a patient by ID.
func (r Repository) GetPatient(id string) (domain.Patient, error) {
	return getRecord[domain.Patient](r.tx, domain.EntityPatient, id)
}

// UpdatePatient replaces a patient record unconditionally. No concurrency
// token is checked; the enclosing transaction provides the isolation.
func (r Repository) UpdatePatient(p domain.Patient) (domain.Patient, error) {
	before, err := r.GetPatient(p.ID)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := putRecord(r.tx, p.ID, p); err != nil {
		return domain.Patient{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityPatient, Action: domain.ActionUpdate, Before: before, After: p})
	return p, nil
}

// CreateDonor stores a new donor, failing when the ID is taken. The organ
// set is normalized so an absent list decodes as empty, never nil.
func (r Repository) CreateDonor(d domain.Donor) (domain.Donor, error) {
	if r.Exists(d.ID) {
		return domain.Donor{}, domain.AlreadyExistsError{Entity: domain.EntityDonor, ID: d.ID}
	}
	if d.OrgansAvailable == nil {
		d.OrgansAvailable = []domain.Organ{}
	}
	d.CreatedAt = r.tx.Now()
	if err := putRecord(r.tx, d.ID, d); err != nil {
		return domain.Donor{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityDonor, Action: domain.ActionCreate, After: d})
	return d, nil
}

// GetDonor retrieves a donor by ID.
func (r Repository) GetDonor(id string) (domain.Donor, error) {
	d, err := getRecord[domain.Donor](r.tx, domain.EntityDonor, id)
	if err != nil {
		return domain.Donor{}, err
	}
	if d.OrgansAvailable == nil {
		d.OrgansAvailable = []domain.Organ{}
	}
	return d, nil
}

// UpdateDonor replaces a donor record unconditionally.
func (r Repository) UpdateDonor(d domain.Donor) (domain.Donor, error) {
	before, err := r.GetDonor(d.ID)
	if err != nil {
		return domain.Donor{}, err
	}
	if d.OrgansAvailable == nil {
		d.OrgansAvailable = []domain.Organ{}
	}
	if err := putRecord(r.tx, d.ID, d); err != nil {
		return domain.Donor{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityDonor, Action: domain.ActionUpdate, Before: before, After: d})
	return d, nil
}

// CreateHospital stores a new hospital identity.
func (r Repository) CreateHospital(h domain.Hospital) (domain.Hospital, error) {
	if r.Exists(h.ID) {
		return domain.Hospital{}, domain.AlreadyExistsError{Entity: domain.EntityHospital, ID: h.ID}
	}
	h.CreatedAt = r.tx.Now()
	if err := putRecord(r.tx, h.ID, h); err != nil {
		return domain.Hospital{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityHospital, Action: domain.ActionCreate, After: h})
	return h, nil
}

// GetHospital retrieves a hospital by ID, credentials included. Callers
// exposing the record externally must go through Hospital.Profile.
func (r Repository) GetHospital(id string) (domain.Hospital, error) {
	return getRecord[domain.Hospital](r.tx, domain.EntityHospital, id)
}

// CreateMatch stores a new match record. Matches are create-once; there is
// deliberately no UpdateMatch.
func (r Repository) CreateMatch(m domain.Match) (domain.Match, error) {
	if r.Exists(m.ID) {
		return domain.Match{}, domain.AlreadyExistsError{Entity: domain.EntityMatch, ID: m.ID}
	}
	m.CreatedAt = r.tx.Now()
	if err := putRecord(r.tx, m.ID, m); err != nil {
		return domain.Match{}, err
	}
	r.tx.RecordChange(domain.Change{Entity: domain.EntityMatch, Action: domain.ActionCreate, After: m})
	return m, nil
}

// GetMatch retrieves a match by ID.
func (r Repository) GetMatch(id string) (domain.Match, error) {
	return getRecord[domain.Match](r.tx, domain.EntityMatch, id)
}

// ClearClass deletes every record of one entity class and returns the
// wiped records as raw documents. The scan-and-delete runs inside the
// enclosing transaction, so the class wipe commits atomically.
func (r Repository) ClearClass(entity domain.EntityType) []domain.KV {
	prefix := domain.KeyPrefix(entity)
	entries := r.tx.Scan(prefix, prefix+domain.KeySentinel)
	for _, kv := range entries {
		r.tx.Delete(kv.Key)
		r.tx.RecordChange(domain.Change{Entity: entity, Action: domain.ActionDelete, Before: rawChangeValue(entity, kv.Value)})
	}
	return entries
}

func rawChangeValue(entity domain.EntityType, raw []byte) any {
	switch entity {
	case domain.EntityPatient:
		var p domain.Patient
		if json.Unmarshal(raw, &p) == nil {
			return p
		}
	case domain.EntityDonor:
		var d domain.Donor
		if json.Unmarshal(raw, &d) == nil {
			return d
		}
	case domain.EntityMatch:
		var m domain.Match
		if json.Unmarshal(raw, &m) == nil {
			return m
		}
	case domain.EntityHospital:
		var h domain.Hospital
		if json.Unmarshal(raw, &h) == nil {
			return h
		}
	}
	return nil
}

// ReadRepository provides typed reads over a committed snapshot.
type ReadRepository struct {
	view domain.TransactionView
}

// NewReadRepository wraps a read-only world-state view.
func NewReadRepository(view domain.TransactionView) ReadRepository {
	return ReadRepository{view: view}
}

func listRange[T any](view domain.TransactionView, prefix string) ([]T, error) {
	entries := view.Scan(prefix, prefix+domain.KeySentinel)
	out := make([]T, 0, len(entries))
	for _, kv := range entries {
		var rec T
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListPatients returns all patients in store key order.
func (r ReadRepository) ListPatients() ([]domain.Patient, error) {
	return listRange[domain.Patient](r.view, domain.KeyPrefixPatient)
}

// ListDonors returns all donors in store key order with normalized organ
// sets.
func (r ReadRepository) ListDonors() ([]domain.Donor, error) {
	donors, err := listRange[domain.Donor](r.view, domain.KeyPrefixDonor)
	if err != nil {
		return nil, err
	}
	for i := range donors {
		if donors[i].OrgansAvailable == nil {
			donors[i].OrgansAvailable = []domain.Organ{}
		}
	}
	return donors, nil
}

// ListHospitals returns all hospital records in store key order. Callers
// must reduce them to profiles before exposure.
func (r ReadRepository) ListHospitals() ([]domain.Hospital, error) {
	return listRange[domain.Hospital](r.view, domain.KeyPrefixHospital)
}

// ListMatches returns all match records in store key order.
func (r ReadRepository) ListMatches() ([]domain.Match, error) {
	return listRange[domain.Match](r.view, domain.KeyPrefixMatch)
}

// GetPatient retrieves a patient from the snapshot.
func (r ReadRepository) GetPatient(id string) (domain.Patient, error) {
	return getView[domain.Patient](r.view, domain.EntityPatient, id)
}

// GetDonor retrieves a donor from the snapshot.
func (r ReadRepository) GetDonor(id string) (domain.Donor, error) {
	d, err := getView[domain.Donor](r.view, domain.EntityDonor, id)
	if err != nil {
		return domain.Donor{}, err
	}
	if d.OrgansAvailable == nil {
		d.OrgansAvailable = []domain.Organ{}
	}
	return d, nil
}

// GetHospital retrieves a hospital from the snapshot.
func (r ReadRepository) GetHospital(id string) (domain.Hospital, error) {
	return getView[domain.Hospital](r.view, domain.EntityHospital, id)
}

func getView[T any](view domain.TransactionView, entity domain.EntityType, id string) (T, error) {
	var rec T
	if !strings.HasPrefix(id, domain.KeyPrefix(entity)) {
		return rec, domain.NotFoundError{Entity: entity, ID: id}
	}
	raw, ok := view.Get(id)
	if !ok {
		return rec, domain.NotFoundError{Entity: entity, ID: id}
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}
