package registry

import (
	"context"
	"testing"
	"time"

	"organcore/internal/infra/persistence/memory"
	"organcore/pkg/domain"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return scoreNow })
	return store
}

func inTx(t *testing.T, store *memory.Store, fn func(Repository) error) error {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return fn(NewRepository(tx))
	})
	return err
}

func TestCreateGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	patient := domain.Patient{
		ID:          "PAT-001",
		NameHash:    HashName("someone"),
		BloodType:   domain.BloodAPos,
		HLA:         "A2, B35",
		OrganNeeded: domain.OrganKidney,
		Status:      domain.PatientWaiting,
		HospitalID:  "HOSP-APOLLO",
	}
	err := inTx(t, store, func(repo Repository) error {
		created, err := repo.CreatePatient(patient)
		if err != nil {
			return err
		}
		if !created.CreatedAt.Equal(scoreNow) {
			t.Fatalf("CreatedAt = %v, want transaction clock", created.CreatedAt)
		}
		got, err := repo.GetPatient("PAT-001")
		if err != nil {
			return err
		}
		got.CreatedAt = patient.CreatedAt
		if got != patient {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	store := newTestStore(t)
	donor := domain.Donor{
		ID:                 "DON-101",
		BloodType:          domain.BloodONeg,
		OrgansAvailable:    []domain.Organ{domain.OrganKidney},
		VerificationStatus: domain.VerificationPending,
	}
	if err := inTx(t, store, func(repo Repository) error {
		_, err := repo.CreateDonor(donor)
		return err
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := inTx(t, store, func(repo Repository) error {
		_, err := repo.CreateDonor(donor)
		return err
	})
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	err := inTx(t, store, func(repo Repository) error {
		_, err := repo.GetDonor("DON-404")
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetRejectsForeignClassKey(t *testing.T) {
	store := newTestStore(t)
	if err := inTx(t, store, func(repo Repository) error {
		_, err := repo.CreateDonor(domain.Donor{
			ID:                 "DON-101",
			BloodType:          domain.BloodONeg,
			OrgansAvailable:    []domain.Organ{domain.OrganKidney},
			VerificationStatus: domain.VerificationVerified,
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := inTx(t, store, func(repo Repository) error {
		if _, err := repo.GetPatient("DON-101"); !domain.IsNotFound(err) {
			t.Fatalf("donor key must not decode as patient, got %v", err)
		}
		if _, err := repo.GetHospital("DON-101"); !domain.IsNotFound(err) {
			t.Fatalf("donor key must not decode as hospital, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		repo := NewReadRepository(view)
		if _, err := repo.GetPatient("DON-101"); !domain.IsNotFound(err) {
			t.Fatalf("snapshot read must reject foreign key, got %v", err)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDonorOrganSetNeverNil(t *testing.T) {
	store := newTestStore(t)
	err := inTx(t, store, func(repo Repository) error {
		created, err := repo.CreateDonor(domain.Donor{
			ID:                 "DON-101",
			BloodType:          domain.BloodONeg,
			VerificationStatus: domain.VerificationPending,
		})
		if err != nil {
			return err
		}
		if created.OrgansAvailable == nil {
			t.Fatalf("create returned nil organ set")
		}
		got, err := repo.GetDonor("DON-101")
		if err != nil {
			return err
		}
		if got.OrgansAvailable == nil {
			t.Fatalf("get returned nil organ set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestListOrderFollowsKeys(t *testing.T) {
	store := newTestStore(t)
	err := inTx(t, store, func(repo Repository) error {
		for _, id := range []string{"PAT-003", "PAT-001", "PAT-002"} {
			if _, err := repo.CreatePatient(domain.Patient{
				ID:          id,
				BloodType:   domain.BloodOPos,
				OrganNeeded: domain.OrganKidney,
				Status:      domain.PatientWaiting,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		patients, err := NewReadRepository(v).ListPatients()
		if err != nil {
			return err
		}
		if len(patients) != 3 {
			t.Fatalf("listed %d patients", len(patients))
		}
		for i, want := range []string{"PAT-001", "PAT-002", "PAT-003"} {
			if patients[i].ID != want {
				t.Fatalf("position %d = %s, want %s", i, patients[i].ID, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestClearClassWipesOnlyItsPrefix(t *testing.T) {
	store := newTestStore(t)
	err := inTx(t, store, func(repo Repository) error {
		if _, err := repo.CreatePatient(domain.Patient{ID: "PAT-001", BloodType: domain.BloodOPos, OrganNeeded: domain.OrganKidney, Status: domain.PatientWaiting}); err != nil {
			return err
		}
		_, err := repo.CreateHospital(domain.Hospital{ID: "HOSP-A", Name: "A"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = inTx(t, store, func(repo Repository) error {
		wiped := repo.ClearClass(domain.EntityPatient)
		if len(wiped) != 1 || wiped[0].Key != "PAT-001" {
			t.Fatalf("wiped = %+v", wiped)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		repo := NewReadRepository(v)
		patients, err := repo.ListPatients()
		if err != nil {
			return err
		}
		if len(patients) != 0 {
			t.Fatalf("patients survived clear: %+v", patients)
		}
		hospitals, err := repo.ListHospitals()
		if err != nil {
			return err
		}
		if len(hospitals) != 1 {
			t.Fatalf("hospitals affected by patient clear")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
