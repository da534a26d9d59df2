package validate_test

import (
	"testing"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/validate"
)

func baseSubmission() *model.SubmissionDoc {
	return &model.SubmissionDoc{
		Header: model.Header{
			SenderID:        "PROV1",
			ReceiverID:      "PAYER1",
			TransactionDate: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC),
			RecordCount:     1,
			DispositionFlag: "SUBMITTED",
		},
		Claims: []model.SubmissionClaim{
			{
				ClaimID:          "C-1",
				PayerID:          "PAYER1",
				ProviderID:       "PROV1",
				EmiratesIDNumber: "784-1234-1234567-1",
				Activities: []model.SubmissionActivity{
					{ActivityID: "A-1", Code: "99213", Type: "CPT", Quantity: 1, Start: time.Now(), Net: 214.13},
				},
			},
		},
	}
}

func TestSubmissionValid(t *testing.T) {
	if failures := validate.Submission(baseSubmission()); len(failures) != 0 {
		t.Fatalf("expected no failures for a well-formed document, got %v", failures)
	}
}

func TestSubmissionMissingHeaderFields(t *testing.T) {
	doc := baseSubmission()
	doc.Header.SenderID = ""
	doc.Header.TransactionDate = time.Time{}

	failures := validate.Submission(doc)
	if len(failures) != 2 {
		t.Fatalf("expected 2 header failures, got %d: %v", len(failures), failures)
	}
}

func TestSubmissionMissingActivityRequiredFields(t *testing.T) {
	doc := baseSubmission()
	doc.Claims[0].Activities[0].Code = ""

	failures := validate.Submission(doc)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure for missing activity code, got %d: %v", len(failures), failures)
	}
	if failures[0].ObjectType != "Activity" {
		t.Errorf("expected failure attributed to Activity, got %q", failures[0].ObjectType)
	}
}

func TestSubmissionNoClaimsFlagged(t *testing.T) {
	doc := baseSubmission()
	doc.Claims = nil

	failures := validate.Submission(doc)
	found := false
	for _, f := range failures {
		if f.Field == "Claims" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an empty-claims failure, got %v", failures)
	}
}

func baseRemittance() *model.RemittanceDoc {
	return &model.RemittanceDoc{
		Header: model.Header{SenderID: "PAYER1", ReceiverID: "PROV1"},
		Claims: []model.RemittanceClaim{
			{
				ClaimID:          "C-1",
				IDPayer:          "PAYER1",
				ProviderID:       "PROV1",
				PaymentReference: "REF-1",
				Activities: []model.RemittanceActivity{
					{ActivityID: "A-1", PaymentAmount: 214.13},
				},
			},
		},
	}
}

func TestRemittanceValid(t *testing.T) {
	if failures := validate.Remittance(baseRemittance()); len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestRemittanceNegativePaymentFlagged(t *testing.T) {
	doc := baseRemittance()
	doc.Claims[0].Activities[0].PaymentAmount = -1

	failures := validate.Remittance(doc)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure for negative payment, got %d: %v", len(failures), failures)
	}
}

func TestRemittanceMissingIDPayer(t *testing.T) {
	doc := baseRemittance()
	doc.Claims[0].IDPayer = ""

	failures := validate.Remittance(doc)
	if len(failures) != 1 || failures[0].Field != "IDPayer" {
		t.Fatalf("expected 1 IDPayer failure, got %v", failures)
	}
}
