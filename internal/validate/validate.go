// Package validate applies shape-level validation to parsed documents
// before they reach the persister: required fields, non-empty collections
// and non-negative amounts; it makes no cross-field consistency checks.
package validate

import (
	"fmt"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

// Failure describes one validation violation, attributable to a specific
// claim/activity so ingesterr can record it against the right object.
type Failure struct {
	ObjectType string
	ObjectKey  string
	Field      string
	Message    string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", f.ObjectType, f.ObjectKey, f.Field, f.Message)
}

func required(objectType, objectKey, field, value string, out *[]Failure) {
	if value == "" {
		*out = append(*out, Failure{objectType, objectKey, field, "required field is empty"})
	}
}

// Submission checks a parsed Claim.Submission document and returns every
// violation found; a nil/empty slice means the document is well-formed
// enough to persist.
func Submission(doc *model.SubmissionDoc) []Failure {
	var out []Failure

	required("Header", "", "SenderID", doc.Header.SenderID, &out)
	required("Header", "", "ReceiverID", doc.Header.ReceiverID, &out)
	required("Header", "", "DispositionFlag", doc.Header.DispositionFlag, &out)
	if doc.Header.TransactionDate.IsZero() {
		out = append(out, Failure{"Header", "", "TransactionDate", "required field is zero"})
	}
	if len(doc.Claims) == 0 {
		out = append(out, Failure{"File", "", "Claims", "document contains no claims"})
	}

	for _, c := range doc.Claims {
		required("Claim", c.ClaimID, "ID", c.ClaimID, &out)
		required("Claim", c.ClaimID, "PayerID", c.PayerID, &out)
		required("Claim", c.ClaimID, "ProviderID", c.ProviderID, &out)
		required("Claim", c.ClaimID, "EmiratesIDNumber", c.EmiratesIDNumber, &out)

		if c.Encounter != nil {
			required("Encounter", c.ClaimID, "FacilityID", c.Encounter.FacilityID, &out)
			if c.Encounter.Start.IsZero() {
				out = append(out, Failure{"Encounter", c.ClaimID, "Start", "required field is zero"})
			}
		}

		for _, d := range c.Diagnoses {
			required("Diagnosis", c.ClaimID, "Code", d.Code, &out)
			required("Diagnosis", c.ClaimID, "Type", d.Type, &out)
		}

		if len(c.Activities) == 0 {
			out = append(out, Failure{"Claim", c.ClaimID, "Activities", "claim has no activities"})
		}
		for _, a := range c.Activities {
			required("Activity", c.ClaimID+"/"+a.ActivityID, "ID", a.ActivityID, &out)
			required("Activity", c.ClaimID+"/"+a.ActivityID, "Code", a.Code, &out)
			required("Activity", c.ClaimID+"/"+a.ActivityID, "Type", a.Type, &out)
			if a.Start.IsZero() {
				out = append(out, Failure{"Activity", c.ClaimID + "/" + a.ActivityID, "Start", "required field is zero"})
			}
			if a.Quantity <= 0 {
				out = append(out, Failure{"Activity", c.ClaimID + "/" + a.ActivityID, "Quantity", "required field is not positive"})
			}
			for _, o := range a.Observations {
				required("Observation", c.ClaimID+"/"+a.ActivityID, "Type", o.ObsType, &out)
				required("Observation", c.ClaimID+"/"+a.ActivityID, "Code", o.ObsCode, &out)
			}
		}
	}
	return out
}

// Remittance checks a parsed Remittance.Advice document the same way.
func Remittance(doc *model.RemittanceDoc) []Failure {
	var out []Failure

	required("Header", "", "SenderID", doc.Header.SenderID, &out)
	required("Header", "", "ReceiverID", doc.Header.ReceiverID, &out)
	if len(doc.Claims) == 0 {
		out = append(out, Failure{"File", "", "Claims", "document contains no claims"})
	}

	for _, c := range doc.Claims {
		required("Claim", c.ClaimID, "ID", c.ClaimID, &out)
		required("Claim", c.ClaimID, "IDPayer", c.IDPayer, &out)
		required("Claim", c.ClaimID, "ProviderID", c.ProviderID, &out)
		required("Claim", c.ClaimID, "PaymentReference", c.PaymentReference, &out)

		if len(c.Activities) == 0 {
			out = append(out, Failure{"Claim", c.ClaimID, "Activities", "remittance claim has no activities"})
		}
		for _, a := range c.Activities {
			required("Activity", c.ClaimID+"/"+a.ActivityID, "ID", a.ActivityID, &out)
			if a.PaymentAmount < 0 {
				out = append(out, Failure{"Activity", c.ClaimID + "/" + a.ActivityID, "PaymentAmount", "negative payment amount"})
			}
		}
	}
	return out
}
