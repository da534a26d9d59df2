package model

import "time"

// RefStatus enumerates claims_ref.* status values.
type RefStatus string

const (
	RefActive   RefStatus = "ACTIVE"
	RefInactive RefStatus = "INACTIVE"
)

// Payer is a claims_ref.payer row, resolved by external payer code.
type Payer struct {
	ID        int64
	Code      string
	Name      string
	Status    RefStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Provider is a claims_ref.provider row, resolved by external provider code.
type Provider struct {
	ID        int64
	Code      string
	Name      string
	Status    RefStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Facility is a claims_ref.facility row, resolved by external facility code.
type Facility struct {
	ID        int64
	Code      string
	Name      string
	Status    RefStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clinician is a claims_ref.clinician row, resolved by external clinician code.
type Clinician struct {
	ID        int64
	Code      string
	Name      string
	Status    RefStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivityCode is a claims_ref.activity_code row (CPT/HCPCS/local code).
type ActivityCode struct {
	ID          int64
	Code        string
	Description string
	Status      RefStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DiagnosisCode is a claims_ref.diagnosis_code row (ICD-10 or local code).
type DiagnosisCode struct {
	ID          int64
	Code        string
	Description string
	Status      RefStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DenialCode is a claims_ref.denial_code row.
type DenialCode struct {
	ID          int64
	Code        string
	Description string
	Status      RefStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FacilityDHPOConfig is one facility's DHPO SOAP credentials, holding the
// AME-encrypted username/password blobs plus the metadata the decryptor
// needs to reverse them (the key ID only; each blob carries its own nonce
// as a prefix, and the AAD is the facility code).
type FacilityDHPOConfig struct {
	ID             int64
	FacilityCode   string
	EndpointURL    string
	UsernameBlob   []byte
	PasswordBlob   []byte
	CryptoMetadata []byte // JSON: {"keyId": "..."}
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
