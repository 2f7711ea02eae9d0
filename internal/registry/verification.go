package registry

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"organcore/pkg/domain"
)

// HashCredential returns the hex sha256 digest stored for hospital
// credentials. Plaintext credentials never reach the world state.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// authenticateHospital checks a supplied credential hash against the
// stored one. Callers hash plaintext before it crosses this boundary. The
// returned error never distinguishes an unknown hospital, an inactive one,
// or a wrong credential.
func authenticateHospital(h domain.Hospital, found bool, credentialHash string) (domain.HospitalProfile, error) {
	if !found || !h.IsActive {
		return domain.HospitalProfile{}, domain.AuthFailedError{}
	}
	if subtle.ConstantTimeCompare([]byte(credentialHash), []byte(h.CredentialHash)) != 1 {
		return domain.HospitalProfile{}, domain.AuthFailedError{}
	}
	return h.Profile(), nil
}

// decideDonorVerification applies a VERIFIED or REJECTED decision to a
// donor. Re-decisions overwrite the previous outcome; the returned note is
// non-empty when a prior decision existed, so callers can audit it.
func decideDonorVerification(repo Repository, donorID string, decision domain.VerificationStatus, hospitalID string) (domain.Donor, string, error) {
	if decision != domain.VerificationVerified && decision != domain.VerificationRejected {
		return domain.Donor{}, "", domain.InvalidArgumentError{Field: "decision", Value: string(decision)}
	}
	if _, err := repo.GetHospital(hospitalID); err != nil {
		return domain.Donor{}, "", err
	}
	donor, err := repo.GetDonor(donorID)
	if err != nil {
		return domain.Donor{}, "", err
	}

	note := ""
	if donor.VerificationStatus != domain.VerificationPending {
		note = fmt.Sprintf("re-decision: %s by %s overrides %s by %s",
			decision, hospitalID, donor.VerificationStatus, donor.VerifiedBy)
	}

	donor.VerificationStatus = decision
	donor.VerifiedBy = hospitalID
	updated, err := repo.UpdateDonor(donor)
	if err != nil {
		return domain.Donor{}, "", err
	}
	return updated, note, nil
}
