package registry

import "organcore/pkg/domain"

// Demo hospital credentials: apollo123, aiims123, fortis123.
var seedHospitals = []domain.Hospital{
	{ID: "HOSP-APOLLO", Name: "Apollo Hospital", Location: "Mumbai", CredentialHash: "15da1cc6ebf7b7b13225c0d6d89e8cab4d40d4672c226618f1e74e5515685f2c", IsActive: true},
	{ID: "HOSP-AIIMS", Name: "AIIMS Delhi", Location: "New Delhi", CredentialHash: "7810c7831b4fcefb7fb887bde3ef976b9d442d39216b155c84f1f67b38f49229", IsActive: true},
	{ID: "HOSP-FORTIS", Name: "Fortis Hospital", Location: "Bangalore", CredentialHash: "72cceae42f682d82c0dc46bcd62c2cf85a95422b3d35eda8ef3e6c7d219e7af6", IsActive: true},
}

func seedPatients() []domain.Patient {
	return []domain.Patient{
		{
			ID:          "PAT-001",
			NameHash:    HashName("Demo Patient One"),
			BloodType:   domain.BloodAPos,
			HLA:         "A2, A24, B35, B44, DR1, DR4",
			OrganNeeded: domain.OrganKidney,
			Status:      domain.PatientWaiting,
			HospitalID:  "HOSP-APOLLO",
		},
		{
			ID:          "PAT-002",
			NameHash:    HashName("Demo Patient Two"),
			BloodType:   domain.BloodONeg,
			HLA:         "A1, A3, B7, B8, DR15, DR17",
			OrganNeeded: domain.OrganLiver,
			Status:      domain.PatientWaiting,
			HospitalID:  "HOSP-AIIMS",
		},
	}
}

func seedDonors() []domain.Donor {
	return []domain.Donor{
		{
			ID:                 "DON-101",
			Name:               "Demo Donor One",
			BloodType:          domain.BloodONeg,
			HLA:                "A2, A24, B35, B44, DR1, DR4",
			OrgansAvailable:    []domain.Organ{domain.OrganKidney, domain.OrganLiver},
			VerificationStatus: domain.VerificationVerified,
			VerifiedBy:         "HOSP-APOLLO",
			ConsentRef:         "sha256:seed-consent-101",
		},
		{
			ID:                 "DON-102",
			Name:               "Demo Donor Two",
			BloodType:          domain.BloodABPos,
			HLA:                "A1, A2, B8, B44, DR3, DR4",
			OrgansAvailable:    []domain.Organ{domain.OrganHeart},
			VerificationStatus: domain.VerificationPending,
			ConsentRef:         "sha256:seed-consent-102",
		},
	}
}

// seed inserts the demo records, skipping IDs that already exist.
func seed(repo Repository) error {
	for _, h := range seedHospitals {
		if repo.Exists(h.ID) {
			continue
		}
		if _, err := repo.CreateHospital(h); err != nil {
			return err
		}
	}
	for _, p := range seedPatients() {
		if repo.Exists(p.ID) {
			continue
		}
		if _, err := repo.CreatePatient(p); err != nil {
			return err
		}
	}
	for _, d := range seedDonors() {
		if repo.Exists(d.ID) {
			continue
		}
		if _, err := repo.CreateDonor(d); err != nil {
			return err
		}
	}
	return nil
}
