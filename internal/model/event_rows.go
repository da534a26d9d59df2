package model

import "time"

// ClaimEventActivity snapshots one activity's amounts as of a claim_event,
// unique per (claim_event_id, activity_id_at_event).
type ClaimEventActivity struct {
	ID                int64
	ClaimEventID      int64
	ActivityIDAtEvent string
	Net               *float64
	PaymentAmount     *float64
	DenialCode        string
}

// EventObservation carries an activity's observations forward onto the
// event-activity snapshot so the timeline can be read without joining back
// into the live submission/remittance graph.
type EventObservation struct {
	ID                   int64
	ClaimEventActivityID int64
	ObsType              string
	ObsCode              string
	Value                string
}

// ClaimStatusTimeline is a status row appended by the persister: a
// SUBMITTED or RESUBMITTED row on submission persist, and on every
// remittance persist the status derived from the claim's submitted and
// paid amounts.
type ClaimStatusTimeline struct {
	ID          int64
	ClaimKeyID  int64
	Status      TimelineStatus
	StatusTime  time.Time
	ClaimEventID int64
	CreatedAt   time.Time
}

// ClaimAttachment is a binary payload linked to the claim it arrived with,
// re-associated after the owning claim graph has been persisted.
type ClaimAttachment struct {
	ID           int64
	ClaimKeyID   int64
	ClaimEventID int64
	FileName     string
	Bytes        []byte
	CreatedAt    time.Time
}

// ClaimResubmissionRow persists the optional <Resubmission> block on a
// submission claim, unique per (claim_id, claim_event_id).
type ClaimResubmissionRow struct {
	ID           int64
	ClaimID      int64
	ClaimEventID *int64
	Type         string
	Comment      string
	Attachment   []byte
}
