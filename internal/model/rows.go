package model

import "time"

// EventType enumerates claim_event.type.
type EventType int

const (
	EventSubmitted   EventType = 1
	EventResubmitted EventType = 2
	EventRemitted    EventType = 3
)

// TimelineStatus enumerates claim_status_timeline.status.
type TimelineStatus int

const (
	StatusSubmitted     TimelineStatus = 1
	StatusResubmitted   TimelineStatus = 2
	StatusPaid          TimelineStatus = 3
	StatusPartiallyPaid TimelineStatus = 4
	StatusRejected      TimelineStatus = 5
)

// IngestionFile is the SSOT row for one received XML document (claims.ingestion_file).
type IngestionFile struct {
	ID                 int64
	FileID             string
	FileName           string
	RootType           RootType
	SenderID           string
	ReceiverID         string
	TransactionDate    time.Time
	DeclaredRecordCount int
	Disposition        string
	RawBytes           []byte
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IngestionRun is a run-scoped audit row aggregating counts for one pipeline pass.
type IngestionRun struct {
	ID              int64
	StartedAt       time.Time
	FinishedAt      *time.Time
	FilesProcessed  int
	FilesFailed     int
	VerifyOK        bool
}

// ClaimKey is the canonical identity shared across submission and remittance graphs.
type ClaimKey struct {
	ID      int64
	ClaimID string
}

// Submission is the root row of one submission graph, one per ingestion_file.
type Submission struct {
	ID              int64
	IngestionFileID int64
	TxAt            time.Time
}

// Claim is a claim row within a submission, unique per ClaimKeyID.
type Claim struct {
	ID           int64
	SubmissionID int64
	ClaimKeyID   int64
	PayerRefID   *int64
	PayerCode    string
	ProviderRefID *int64
	ProviderCode string
	EmiratesIDNumber string
	Gross        float64
	PatientShare float64
	Net          float64
	Comments     string
	TxAt         time.Time
}

// Activity is a claim activity row, unique per (claim_id, activity_id).
type Activity struct {
	ID            int64
	ClaimID       int64
	ActivityID    string
	Start         time.Time
	Type          string
	Code          string
	ActivityRefID *int64
	Quantity      float64
	Net           float64
	ClinicianRefID *int64
	ClinicianCode  string
	PriorAuthID    string
}

// Remittance is the root row of one remittance graph, one per ingestion_file.
type Remittance struct {
	ID              int64
	IngestionFileID int64
	TxAt            time.Time
}

// RemittanceClaimRow is unique per (remittance_id, claim_key_id).
type RemittanceClaimRow struct {
	ID              int64
	RemittanceID    int64
	ClaimKeyID      int64
	IDPayerRefID    *int64
	IDPayerCode     string
	ProviderRefID   *int64
	ProviderCode    string
	PaymentReference string
	DateSettlement  *time.Time
	DenialCodeRefID *int64
	DenialCode      string
}

// RemittanceActivityRow is unique per (remittance_claim_id, activity_id).
type RemittanceActivityRow struct {
	ID               int64
	RemittanceClaimID int64
	ActivityID       string
	Net              float64
	ListPrice        float64
	Gross            float64
	PatientShare     float64
	PaymentAmount    float64
	DenialCodeRefID  *int64
	DenialCode       string
	ClinicianRefID   *int64
}

// ClaimEvent is a lifecycle milestone row, unique per (claim_key_id, type, event_time).
type ClaimEvent struct {
	ID           int64
	ClaimKeyID   int64
	Type         EventType
	EventTime    time.Time
	SubmissionID *int64
	RemittanceID *int64
}

// ClaimPayment is the per-claim payment aggregate produced by the payment recalculator.
type ClaimPayment struct {
	ID                int64
	ClaimKeyID        int64
	SubmittedAmount   float64
	PaidAmount        float64
	RejectedAmount    float64
	DeniedCount       int
	ActivityCount     int
	FirstSubmissionAt *time.Time
	LastRemittanceAt  *time.Time
	SettlementAt      *time.Time
	PaymentStatus     TimelineStatus
	ProcessingCycles  int
	PaymentReference  string
}

// CodeDiscoveryAudit records every first-sight of a reference code during ingestion.
type CodeDiscoveryAudit struct {
	ID                int64
	SourceTable       string
	Code              string
	CodeSystem        string
	DiscoveredBy       string
	IngestionFileID   int64
	ClaimExternalID   string
	CreatedAt         time.Time
}
