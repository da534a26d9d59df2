package xmlparse_test

import (
	"testing"
	"time"
	"unicode/utf16"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/xmlparse"
)

const submissionXML = `<?xml version="1.0" encoding="UTF-8"?>
<Claim.Submission>
  <Header>
    <SenderID>PROV1</SenderID>
    <ReceiverID>PAYER1</ReceiverID>
    <TransactionDate>14/2/2025 12:00</TransactionDate>
    <RecordCount>1</RecordCount>
    <DispositionFlag>SUBMITTED</DispositionFlag>
  </Header>
  <Claim>
    <ID>C-1</ID>
    <PayerID>PAYER1</PayerID>
    <ProviderID>PROV1</ProviderID>
    <EmiratesIDNumber>784-1234-1234567-1</EmiratesIDNumber>
    <Gross>214.13</Gross>
    <PatientShare>0</PatientShare>
    <Net>214.13</Net>
    <Activity>
      <ID>A-1</ID>
      <Start>14/2/2025 12:00</Start>
      <Type>CPT</Type>
      <Code>99213</Code>
      <Quantity>1</Quantity>
      <Net>214.13</Net>
      <Clinician>CLIN1</Clinician>
    </Activity>
  </Claim>
</Claim.Submission>`

const remittanceXML = `<?xml version="1.0" encoding="UTF-8"?>
<Remittance.Advice>
  <Header>
    <SenderID>PAYER1</SenderID>
    <ReceiverID>PROV1</ReceiverID>
    <TransactionDate>20/2/2025 09:30</TransactionDate>
    <RecordCount>1</RecordCount>
  </Header>
  <Claim>
    <ID>C-1</ID>
    <IDPayer>PAYER1</IDPayer>
    <ProviderID>PROV1</ProviderID>
    <PaymentReference>REF-1</PaymentReference>
    <Activity>
      <ID>A-1</ID>
      <Net>214.13</Net>
      <PaymentAmount>214.13</PaymentAmount>
    </Activity>
  </Claim>
</Remittance.Advice>`

func TestParseSubmissionHappyPath(t *testing.T) {
	doc, err := xmlparse.ParseSubmission([]byte(submissionXML))
	if err != nil {
		t.Fatalf("ParseSubmission: %v", err)
	}
	if doc.Header.SenderID != "PROV1" || doc.Header.ReceiverID != "PAYER1" {
		t.Fatalf("unexpected header: %+v", doc.Header)
	}
	wantTx := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	if !doc.Header.TransactionDate.Equal(wantTx) {
		t.Fatalf("unexpected transaction date: %v", doc.Header.TransactionDate)
	}
	if len(doc.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(doc.Claims))
	}
	c := doc.Claims[0]
	if c.ClaimID != "C-1" || c.PayerID != "PAYER1" || c.ProviderID != "PROV1" {
		t.Fatalf("unexpected claim: %+v", c)
	}
	if len(c.Activities) != 1 || c.Activities[0].ActivityID != "A-1" || c.Activities[0].Net != 214.13 {
		t.Fatalf("unexpected activities: %+v", c.Activities)
	}
	if c.Activities[0].ClinicianID != "CLIN1" {
		t.Fatalf("expected clinician CLIN1, got %q", c.Activities[0].ClinicianID)
	}
}

func TestParseRemittanceHappyPath(t *testing.T) {
	doc, err := xmlparse.ParseRemittance([]byte(remittanceXML))
	if err != nil {
		t.Fatalf("ParseRemittance: %v", err)
	}
	if len(doc.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(doc.Claims))
	}
	c := doc.Claims[0]
	if c.ClaimID != "C-1" || c.IDPayer != "PAYER1" {
		t.Fatalf("unexpected claim: %+v", c)
	}
	if len(c.Activities) != 1 || c.Activities[0].PaymentAmount != 214.13 {
		t.Fatalf("unexpected activities: %+v", c.Activities)
	}
}

func TestParseSubmissionMalformedXMLFails(t *testing.T) {
	_, err := xmlparse.ParseSubmission([]byte(`<Claim.Submission><Header></Claim.Submission>`))
	if err == nil {
		t.Fatal("expected malformed XML to return an error")
	}
	var pe *xmlparse.ParseException
	if !asParseException(err, &pe) {
		t.Fatalf("expected a *ParseException, got %T: %v", err, err)
	}
}

func TestParseSubmissionBadDateFails(t *testing.T) {
	bad := `<Claim.Submission><Header><SenderID>A</SenderID><ReceiverID>B</ReceiverID><TransactionDate>not-a-date</TransactionDate></Header></Claim.Submission>`
	_, err := xmlparse.ParseSubmission([]byte(bad))
	if err == nil {
		t.Fatal("expected bad date to return an error")
	}
}

func TestNormalizeStripsUTF8BOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<a/>")...)
	out, err := xmlparse.Normalize(withBOM)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if string(out) != "<a/>" {
		t.Fatalf("expected BOM stripped, got %q", out)
	}
}

func TestNormalizeTranscodesUTF16LE(t *testing.T) {
	text := "<a/>"
	codepoints := utf16.Encode([]rune(text))
	raw := []byte{0xFF, 0xFE}
	for _, cp := range codepoints {
		raw = append(raw, byte(cp), byte(cp>>8))
	}
	out, err := xmlparse.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if string(out) != text {
		t.Fatalf("expected transcoded UTF-8 %q, got %q", text, out)
	}
}

func asParseException(err error, target **xmlparse.ParseException) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if pe, ok := err.(*xmlparse.ParseException); ok {
			*target = pe
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
