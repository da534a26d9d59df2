// Transport manages shared HTTP transports per DHPO facility endpoint, so
// a burst of calls to one facility reuses connections instead of each
// worker dialing fresh, while counting requests and transport errors per
// facility (readable through TransportPool.Metrics).
package dhposoap

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// TransportConfig holds per-facility HTTP transport tuning.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

type transportMetrics struct {
	totalRequests sync.Map // map[string]*int64
	totalErrors   sync.Map
}

// TransportPool hands out a shared *http.Client per facility code.
type TransportPool struct {
	mu      sync.RWMutex
	clients map[string]*http.Client
	cfg     TransportConfig
	metrics *transportMetrics
}

func NewTransportPool(cfg TransportConfig) *TransportPool {
	return &TransportPool{
		clients: make(map[string]*http.Client),
		cfg:     cfg,
		metrics: &transportMetrics{},
	}
}

// ClientFor returns the shared client for facilityCode, creating one with
// the given request timeout on first use.
func (p *TransportPool) ClientFor(facilityCode string, timeout time.Duration) *http.Client {
	p.mu.RLock()
	if c, ok := p.clients[facilityCode]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[facilityCode]; ok {
		return c
	}

	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout, KeepAlive: p.cfg.KeepAlive}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        p.cfg.MaxIdleConns,
		MaxIdleConnsPerHost: p.cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     p.cfg.MaxConnsPerHost,
		IdleConnTimeout:     p.cfg.IdleConnTimeout,
		TLSHandshakeTimeout: p.cfg.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}

	client := &http.Client{
		Transport: &metricsRoundTripper{inner: transport, facilityCode: facilityCode, metrics: p.metrics},
		Timeout:   timeout,
	}
	p.clients[facilityCode] = client
	return client
}

// Close releases idle connections across every facility client.
func (p *TransportPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.Transport.(*metricsRoundTripper).inner.CloseIdleConnections()
	}
}

// Metrics snapshots total request/error counts per facility. No HTTP
// endpoint of this service exposes it.
func (p *TransportPool) Metrics() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	p.metrics.totalRequests.Range(func(k, v any) bool {
		name := k.(string)
		if _, ok := out[name]; !ok {
			out[name] = map[string]int64{}
		}
		out[name]["total_requests"] = atomic.LoadInt64(v.(*int64))
		return true
	})
	p.metrics.totalErrors.Range(func(k, v any) bool {
		name := k.(string)
		if _, ok := out[name]; !ok {
			out[name] = map[string]int64{}
		}
		out[name]["total_errors"] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

type metricsRoundTripper struct {
	inner        *http.Transport
	facilityCode string
	metrics      *transportMetrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	total := counter(&m.metrics.totalRequests, m.facilityCode)
	atomic.AddInt64(total, 1)

	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		errs := counter(&m.metrics.totalErrors, m.facilityCode)
		atomic.AddInt64(errs, 1)
		return nil, err
	}
	return resp, nil
}

func counter(store *sync.Map, key string) *int64 {
	if v, ok := store.Load(key); ok {
		return v.(*int64)
	}
	c := new(int64)
	actual, _ := store.LoadOrStore(key, c)
	return actual.(*int64)
}
