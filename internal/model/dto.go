// Package model holds the normalized claim domain: the DTOs produced by
// the XML parser and the row shapes persisted into claims.* / claims_ref.*.
package model

import "time"

// RootType distinguishes the two inbound document shapes.
type RootType string

const (
	RootSubmission RootType = "Submission"
	RootRemittance RootType = "Remittance"
)

// Header carries the fields common to both Submission and Remittance
// documents (Claim.Submission/Header and Remittance.Advice/Header).
type Header struct {
	SenderID          string
	ReceiverID        string
	TransactionDate   time.Time
	RecordCount       int
	DispositionFlag   string
}

// SubmissionDoc is the fully-materialized result of parsing a
// Claim.Submission document. All child collections are complete slices;
// the parser never yields lazily.
type SubmissionDoc struct {
	Header Header
	Claims []SubmissionClaim
	// Attachments extracted as a side-channel, keyed by the enclosing
	// claim's business ID so the persister can re-associate them after
	// the claim graph is written.
	Attachments []ParsedAttachment
}

// RemittanceDoc is the fully-materialized result of parsing a
// Remittance.Advice document.
type RemittanceDoc struct {
	Header Header
	Claims []RemittanceClaim
}

// ParsedAttachment is a binary payload extracted from a submission claim's
// <Attachment> element.
type ParsedAttachment struct {
	ClaimID  string
	FileName string
	Bytes    []byte
}

// SubmissionClaim is one <Claim> entry within a Claim.Submission document.
type SubmissionClaim struct {
	ClaimID        string
	PayerID        string
	ProviderID     string
	EmiratesIDNumber string
	Gross          float64
	PatientShare   float64
	Net            float64
	Comments       string

	Encounter   *Encounter
	Diagnoses   []Diagnosis
	Activities  []SubmissionActivity
	Resubmission *Resubmission
}

// Encounter is the optional encounter block on a submission claim.
type Encounter struct {
	FacilityID string
	Type       string
	Start      time.Time
	End        *time.Time
}

// Diagnosis is one <Diagnosis> entry on a submission claim.
type Diagnosis struct {
	Type string // e.g. "Principal", "Secondary"
	Code string
}

// SubmissionActivity is one <Activity> entry on a submission claim.
type SubmissionActivity struct {
	ActivityID  string
	Start       time.Time
	Type        string
	Code        string
	Quantity    float64
	Net         float64
	ClinicianID string
	PriorAuthID string
	Observations []Observation
}

// Observation is one <Observation> entry on a submission activity.
// ValueBytes is populated when Type == "File" (binary-valued observation).
type Observation struct {
	ObsType    string
	ObsCode    string
	Value      string
	ValueType  string
	ValueBytes []byte
}

// Resubmission is the optional <Resubmission> block on a submission claim.
type Resubmission struct {
	Type       string
	Comment    string
	Attachment []byte
}

// RemittanceClaim is one <Claim> entry within a Remittance.Advice document.
type RemittanceClaim struct {
	ClaimID         string
	IDPayer         string
	ProviderID      string
	PaymentReference string
	DateSettlement  *time.Time
	DenialCode      string // whole-claim denial, optional

	Activities []RemittanceActivity
}

// RemittanceActivity is one <Activity> entry on a remittance claim.
type RemittanceActivity struct {
	ActivityID     string
	Start          time.Time
	Type           string
	Code           string
	Quantity       float64
	Net            float64
	ListPrice      float64
	Gross          float64
	PatientShare   float64
	PaymentAmount  float64
	DenialCode     string
	ClinicianID    string
}
