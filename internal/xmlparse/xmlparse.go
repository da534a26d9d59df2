// Package xmlparse turns a raw inbound file into a model.SubmissionDoc or
// model.RemittanceDoc using a forward-only encoding/xml token stream. No
// third-party SOAP/XML library appears anywhere in the codebase this
// service grew out of, so this package stays on the standard library
// decoder; charset normalization below is the one place an external
// dependency is pulled in, since UTF-16 inbound files are routine on this
// integration and golang.org/x/text is already a transitive dependency of
// the stack this service shares a module with.
package xmlparse

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/model"
)

// ParseException carries enough structure for ingesterr to record a
// per-object parse failure without re-deriving it from an error string.
type ParseException struct {
	Code       string
	ObjectType string
	ObjectKey  string
	Cause      error
}

func (e *ParseException) Error() string {
	return fmt.Sprintf("parse %s %s: %s: %v", e.ObjectType, e.ObjectKey, e.Code, e.Cause)
}

func (e *ParseException) Unwrap() error { return e.Cause }

func fail(code, objectType, objectKey string, cause error) *ParseException {
	return &ParseException{Code: code, ObjectType: objectType, ObjectKey: objectKey, Cause: cause}
}

const (
	dateLayout     = "2/1/2006"
	dateTimeLayout = "2/1/2006 15:04"
)

// Normalize strips a BOM and transcodes UTF-16LE/BE payloads to UTF-8, and
// unwraps a single-entry gzip or zip container, so the decoder always sees
// well-formed UTF-8 XML regardless of how the sender packaged the file.
func Normalize(raw []byte) ([]byte, error) {
	raw, err := unwrapContainer(raw)
	if err != nil {
		return nil, fail("E_CONTAINER", "File", "", err)
	}

	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return raw[3:], nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		return decodeUTF16(raw, unicode.LittleEndian)
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return raw, nil
	}
}

func decodeUTF16(raw []byte, endian unicode.Endianness) ([]byte, error) {
	enc := unicode.UTF16(endian, unicode.ExpectBOM)
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("transcode utf-16: %w", err)
	}
	return out, nil
}

func unwrapContainer(raw []byte) ([]byte, error) {
	switch {
	case len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b:
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case len(raw) > 4 && string(raw[:2]) == "PK":
		zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return nil, err
		}
		if len(zr.File) != 1 {
			return nil, fmt.Errorf("zip container must hold exactly one entry, found %d", len(zr.File))
		}
		f, err := zr.File[0].Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	default:
		return raw, nil
	}
}

// ParseSubmission streams a Claim.Submission document into a fully
// materialized model.SubmissionDoc.
func ParseSubmission(raw []byte) (*model.SubmissionDoc, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(normalized))
	doc := &model.SubmissionDoc{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail("E_XML_MALFORMED", "File", "", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "Header":
			h, err := parseHeader(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Header = *h
		case "Claim":
			c, attachments, err := parseSubmissionClaim(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Claims = append(doc.Claims, *c)
			doc.Attachments = append(doc.Attachments, attachments...)
		}
	}

	if doc.Header.RecordCount == 0 {
		doc.Header.RecordCount = len(doc.Claims)
	}
	return doc, nil
}

// ParseRemittance streams a Remittance.Advice document into a fully
// materialized model.RemittanceDoc.
func ParseRemittance(raw []byte) (*model.RemittanceDoc, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(normalized))
	doc := &model.RemittanceDoc{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail("E_XML_MALFORMED", "File", "", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "Header":
			h, err := parseHeader(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Header = *h
		case "Claim":
			c, err := parseRemittanceClaim(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Claims = append(doc.Claims, *c)
		}
	}

	if doc.Header.RecordCount == 0 {
		doc.Header.RecordCount = len(doc.Claims)
	}
	return doc, nil
}

func parseHeader(dec *xml.Decoder, start xml.StartElement) (*model.Header, error) {
	h := &model.Header{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fail("E_XML_MALFORMED", "Header", "", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := innerText(dec)
			if err != nil {
				return nil, err
			}
			switch t.Name.Local {
			case "SenderID":
				h.SenderID = text
			case "ReceiverID":
				h.ReceiverID = text
			case "TransactionDate":
				ts, err := time.Parse(dateTimeLayout, text)
				if err != nil {
					return nil, fail("E_BAD_DATE", "Header", "TransactionDate", err)
				}
				h.TransactionDate = ts
			case "RecordCount":
				n, err := strconv.Atoi(text)
				if err != nil {
					return nil, fail("E_BAD_NUMBER", "Header", "RecordCount", err)
				}
				h.RecordCount = n
			case "DispositionFlag":
				h.DispositionFlag = text
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return h, nil
			}
		}
	}
}

func parseSubmissionClaim(dec *xml.Decoder, start xml.StartElement) (*model.SubmissionClaim, []model.ParsedAttachment, error) {
	c := &model.SubmissionClaim{}
	var attachments []model.ParsedAttachment

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fail("E_XML_MALFORMED", "Claim", c.ClaimID, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ID":
				c.ClaimID, err = innerText(dec)
			case "PayerID":
				c.PayerID, err = innerText(dec)
			case "ProviderID":
				c.ProviderID, err = innerText(dec)
			case "EmiratesIDNumber":
				c.EmiratesIDNumber, err = innerText(dec)
			case "Gross":
				c.Gross, err = innerFloat(dec)
			case "PatientShare":
				c.PatientShare, err = innerFloat(dec)
			case "Net":
				c.Net, err = innerFloat(dec)
			case "Comments":
				c.Comments, err = innerText(dec)
			case "Encounter":
				c.Encounter, err = parseEncounter(dec, t)
			case "Diagnosis":
				var d model.Diagnosis
				d, err = parseDiagnosis(dec, t)
				if err == nil {
					c.Diagnoses = append(c.Diagnoses, d)
				}
			case "Activity":
				var a model.SubmissionActivity
				a, err = parseSubmissionActivity(dec, t)
				if err == nil {
					c.Activities = append(c.Activities, a)
				}
			case "Resubmission":
				c.Resubmission, err = parseResubmission(dec, t)
			case "Attachment":
				var a model.ParsedAttachment
				a, err = parseAttachment(dec, t)
				if err == nil {
					a.ClaimID = c.ClaimID
					attachments = append(attachments, a)
				}
			default:
				err = skipElement(dec, t)
			}
			if err != nil {
				return nil, nil, fail("E_FIELD", "Claim", c.ClaimID, err)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return c, attachments, nil
			}
		}
	}
}

func parseEncounter(dec *xml.Decoder, start xml.StartElement) (*model.Encounter, error) {
	e := &model.Encounter{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := innerText(dec)
			if err != nil {
				return nil, err
			}
			switch t.Name.Local {
			case "FacilityID":
				e.FacilityID = text
			case "Type":
				e.Type = text
			case "Start":
				ts, err := time.Parse(dateTimeLayout, text)
				if err != nil {
					return nil, err
				}
				e.Start = ts
			case "End":
				if text != "" {
					ts, err := time.Parse(dateTimeLayout, text)
					if err != nil {
						return nil, err
					}
					e.End = &ts
				}
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return e, nil
			}
		}
	}
}

func parseDiagnosis(dec *xml.Decoder, start xml.StartElement) (model.Diagnosis, error) {
	d := model.Diagnosis{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return d, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := innerText(dec)
			if err != nil {
				return d, err
			}
			switch t.Name.Local {
			case "Type":
				d.Type = text
			case "Code":
				d.Code = text
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return d, nil
			}
		}
	}
}

func parseSubmissionActivity(dec *xml.Decoder, start xml.StartElement) (model.SubmissionActivity, error) {
	a := model.SubmissionActivity{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return a, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ID":
				a.ActivityID, err = innerText(dec)
			case "Start":
				var text string
				text, err = innerText(dec)
				if err == nil {
					a.Start, err = time.Parse(dateTimeLayout, text)
				}
			case "Type":
				a.Type, err = innerText(dec)
			case "Code":
				a.Code, err = innerText(dec)
			case "Quantity":
				a.Quantity, err = innerFloat(dec)
			case "Net":
				a.Net, err = innerFloat(dec)
			case "Clinician":
				a.ClinicianID, err = innerText(dec)
			case "PriorAuthorizationID":
				a.PriorAuthID, err = innerText(dec)
			case "Observation":
				var o model.Observation
				o, err = parseObservation(dec, t)
				if err == nil {
					a.Observations = append(a.Observations, o)
				}
			default:
				err = skipElement(dec, t)
			}
			if err != nil {
				return a, err
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return a, nil
			}
		}
	}
}

func parseObservation(dec *xml.Decoder, start xml.StartElement) (model.Observation, error) {
	o := model.Observation{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return o, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Type":
				o.ObsType, err = innerText(dec)
			case "Code":
				o.ObsCode, err = innerText(dec)
			case "Value":
				o.Value, err = innerText(dec)
			case "ValueType":
				o.ValueType, err = innerText(dec)
			default:
				err = skipElement(dec, t)
			}
			if err != nil {
				return o, err
			}
		case xml.EndElement:
			if t.Name == start.Name {
				if o.ObsType == "File" {
					o.ValueBytes = []byte(o.Value)
				}
				return o, nil
			}
		}
	}
}

func parseResubmission(dec *xml.Decoder, start xml.StartElement) (*model.Resubmission, error) {
	r := &model.Resubmission{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text, err := innerText(dec)
			if err != nil {
				return nil, err
			}
			switch t.Name.Local {
			case "Type":
				r.Type = text
			case "Comment":
				r.Comment = text
			case "Attachment":
				r.Attachment = []byte(text)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return r, nil
			}
		}
	}
}

func parseAttachment(dec *xml.Decoder, start xml.StartElement) (model.ParsedAttachment, error) {
	text, err := innerText(dec)
	if err != nil {
		return model.ParsedAttachment{}, err
	}
	return model.ParsedAttachment{Bytes: []byte(text)}, nil
}

func parseRemittanceClaim(dec *xml.Decoder, start xml.StartElement) (*model.RemittanceClaim, error) {
	c := &model.RemittanceClaim{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fail("E_XML_MALFORMED", "Claim", c.ClaimID, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ID":
				c.ClaimID, err = innerText(dec)
			case "IDPayer":
				c.IDPayer, err = innerText(dec)
			case "ProviderID":
				c.ProviderID, err = innerText(dec)
			case "PaymentReference":
				c.PaymentReference, err = innerText(dec)
			case "DateSettlement":
				var text string
				text, err = innerText(dec)
				if err == nil && text != "" {
					var ts time.Time
					ts, err = time.Parse(dateLayout, text)
					if err == nil {
						c.DateSettlement = &ts
					}
				}
			case "DenialCode":
				c.DenialCode, err = innerText(dec)
			case "Activity":
				var a model.RemittanceActivity
				a, err = parseRemittanceActivity(dec, t)
				if err == nil {
					c.Activities = append(c.Activities, a)
				}
			default:
				err = skipElement(dec, t)
			}
			if err != nil {
				return nil, fail("E_FIELD", "Claim", c.ClaimID, err)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return c, nil
			}
		}
	}
}

func parseRemittanceActivity(dec *xml.Decoder, start xml.StartElement) (model.RemittanceActivity, error) {
	a := model.RemittanceActivity{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return a, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ID":
				a.ActivityID, err = innerText(dec)
			case "Start":
				var text string
				text, err = innerText(dec)
				if err == nil {
					a.Start, err = time.Parse(dateTimeLayout, text)
				}
			case "Type":
				a.Type, err = innerText(dec)
			case "Code":
				a.Code, err = innerText(dec)
			case "Quantity":
				a.Quantity, err = innerFloat(dec)
			case "Net":
				a.Net, err = innerFloat(dec)
			case "ListPrice":
				a.ListPrice, err = innerFloat(dec)
			case "Gross":
				a.Gross, err = innerFloat(dec)
			case "PatientShare":
				a.PatientShare, err = innerFloat(dec)
			case "PaymentAmount":
				a.PaymentAmount, err = innerFloat(dec)
			case "DenialCode":
				a.DenialCode, err = innerText(dec)
			case "Clinician":
				a.ClinicianID, err = innerText(dec)
			default:
				err = skipElement(dec, t)
			}
			if err != nil {
				return a, err
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return a, nil
			}
		}
	}
}

// innerText reads the character data of a simple leaf element and consumes
// its matching EndElement.
func innerText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return strings.TrimSpace(sb.String()), nil
			}
			depth--
		}
	}
}

func innerFloat(dec *xml.Decoder) (float64, error) {
	text, err := innerText(dec)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	return strconv.ParseFloat(text, 64)
}

// skipElement discards an unrecognized element's full subtree.
func skipElement(dec *xml.Decoder, start xml.StartElement) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}
