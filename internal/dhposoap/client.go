// Package dhposoap is the SOAP 1.1 client for the DHPO claims gateway:
// envelope construction, transport with a per-facility circuit breaker and
// bounded retries, and result-code interpretation for the four operations
// this service calls (GetNewTransactions, SearchTransactions,
// DownloadTransactionFile, SetTransactionDownloaded).
package dhposoap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Credentials are the per-facility SOAP login, already decrypted by ame.
type Credentials struct {
	FacilityCode string
	Username     string
	Password     string
}

// ResultCode classifies a DHPO response: any non-negative code is
// success, -4 is retryable (transient upstream fault), anything else
// negative is fatal for this call.
type ResultCode int

func (c ResultCode) Success() bool   { return c >= 0 }
func (c ResultCode) Retryable() bool { return c == -4 }

// Client calls the DHPO SOAP endpoint for one facility at a time, each
// facility isolated behind its own circuit breaker so a single struggling
// facility cannot exhaust retries/backoff budget meant for the others.
type Client struct {
	baseURL    string
	transports *TransportPool
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	breakers   map[string]*gobreaker.CircuitBreaker
	log        zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryBase time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		transports: NewTransportPool(DefaultTransportConfig()),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		log:        log.With().Str("component", "dhposoap").Logger(),
	}
}

func (c *Client) Close() { c.transports.Close() }

func (c *Client) breakerFor(facilityCode string) *gobreaker.CircuitBreaker {
	if b, ok := c.breakers[facilityCode]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dhpo-" + facilityCode,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[facilityCode] = b
	return b
}

// envelope is the outer SOAP 1.1 body this service sends for every
// operation; Action identifies which DHPO method the body wraps.
type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	XMLNS   string   `xml:"xmlns:soap,attr"`
	Body    envelopeBody `xml:"soap:Body"`
}

type envelopeBody struct {
	InnerXML []byte `xml:",innerxml"`
}

func buildEnvelope(action string, creds Credentials, extra map[string]string) []byte {
	var inner bytes.Buffer
	fmt.Fprintf(&inner, "<%s xmlns=\"http://dhpo.example.com/\">", action)
	fmt.Fprintf(&inner, "<Username>%s</Username><Password>%s</Password>", xmlEscape(creds.Username), xmlEscape(creds.Password))
	for k, v := range extra {
		fmt.Fprintf(&inner, "<%s>%s</%s>", k, xmlEscape(v), k)
	}
	fmt.Fprintf(&inner, "</%s>", action)

	env := envelope{XMLNS: "http://schemas.xmlsoap.org/soap/envelope/", Body: envelopeBody{InnerXML: inner.Bytes()}}
	out, _ := xml.Marshal(env)
	return out
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// call performs one SOAP round trip through the facility's circuit breaker
// and a bounded exponential backoff loop for retryable failures.
func (c *Client) call(ctx context.Context, creds Credentials, action string, extra map[string]string) ([]byte, error) {
	client := c.transports.ClientFor(creds.FacilityCode, c.timeout)
	breaker := c.breakerFor(creds.FacilityCode)
	body := buildEnvelope(action, creds, extra)

	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(c.retryBase)),
		uint64(c.maxRetries)), ctx)

	var respBody []byte
	op := func() error {
		result, err := breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "text/xml; charset=utf-8")
			req.Header.Set("SOAPAction", action)

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			out, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("dhpo %s: http %d", action, resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return out, backoff.Permanent(fmt.Errorf("dhpo %s: http %d", action, resp.StatusCode))
			}
			return out, nil
		})
		if err != nil {
			return err
		}
		respBody = result.([]byte)
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("dhpo %s call failed for facility %s: %w", action, creds.FacilityCode, err)
	}
	return respBody, nil
}

// NewTransactionsResult is the decoded response of GetNewTransactions.
type NewTransactionsResult struct {
	Code  ResultCode
	Files []TransactionFileRef
}

// TransactionFileRef identifies one file DHPO has made available.
type TransactionFileRef struct {
	FileID   string
	FileName string
}

type getNewTransactionsResponse struct {
	ResultCode int    `xml:"GetNewTransactionsResult>Code"`
	Files      []struct {
		FileID   string `xml:"FileID"`
		FileName string `xml:"FileName"`
	} `xml:"GetNewTransactionsResult>Files>File"`
}

// GetNewTransactions polls for newly available files since the last
// successful poll (DHPO tracks the watermark server-side per credential).
func (c *Client) GetNewTransactions(ctx context.Context, creds Credentials) (*NewTransactionsResult, error) {
	raw, err := c.call(ctx, creds, "GetNewTransactions", nil)
	if err != nil {
		return nil, err
	}
	var parsed getNewTransactionsResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode GetNewTransactions response: %w", err)
	}
	result := &NewTransactionsResult{Code: ResultCode(parsed.ResultCode)}
	for _, f := range parsed.Files {
		result.Files = append(result.Files, TransactionFileRef{FileID: f.FileID, FileName: f.FileName})
	}
	return result, nil
}

// SearchTransactions performs a bounded time-window search, used as a
// fallback sweep against files GetNewTransactions might have missed.
func (c *Client) SearchTransactions(ctx context.Context, creds Credentials, from, to time.Time) (*NewTransactionsResult, error) {
	raw, err := c.call(ctx, creds, "SearchTransactions", map[string]string{
		"FromDate": from.Format("2006-01-02"),
		"ToDate":   to.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	var parsed getNewTransactionsResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode SearchTransactions response: %w", err)
	}
	result := &NewTransactionsResult{Code: ResultCode(parsed.ResultCode)}
	for _, f := range parsed.Files {
		result.Files = append(result.Files, TransactionFileRef{FileID: f.FileID, FileName: f.FileName})
	}
	return result, nil
}

type downloadResponse struct {
	ResultCode int    `xml:"DownloadTransactionFileResult>Code"`
	FileBase64 string `xml:"DownloadTransactionFileResult>FileContents"`
}

// DownloadTransactionFile retrieves one file's bytes by FileID.
func (c *Client) DownloadTransactionFile(ctx context.Context, creds Credentials, fileID string) (ResultCode, []byte, error) {
	raw, err := c.call(ctx, creds, "DownloadTransactionFile", map[string]string{"FileID": fileID})
	if err != nil {
		return 0, nil, err
	}
	var parsed downloadResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return 0, nil, fmt.Errorf("decode DownloadTransactionFile response: %w", err)
	}
	code := ResultCode(parsed.ResultCode)
	if !code.Success() {
		return code, nil, nil
	}
	fileBytes, err := base64.StdEncoding.DecodeString(parsed.FileBase64)
	if err != nil {
		return code, nil, fmt.Errorf("decode base64 file contents: %w", err)
	}
	return code, fileBytes, nil
}

type ackResponse struct {
	ResultCode int `xml:"SetTransactionDownloadedResult>Code"`
}

// SetTransactionDownloaded acknowledges a file so DHPO stops returning it
// from subsequent GetNewTransactions polls.
func (c *Client) SetTransactionDownloaded(ctx context.Context, creds Credentials, fileID string) (ResultCode, error) {
	raw, err := c.call(ctx, creds, "SetTransactionDownloaded", map[string]string{"FileID": fileID})
	if err != nil {
		return 0, err
	}
	var parsed ackResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decode SetTransactionDownloaded response: %w", err)
	}
	return ResultCode(parsed.ResultCode), nil
}
