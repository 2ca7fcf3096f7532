package pairing

import (
	"sync"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
)

// Request is a pairing attempt waiting for its PIN. The HTTP/CLI front
// end resolves Pin with the user-entered value; the core only ever
// blocks on awaiting that single promise.
type Request struct {
	PairSecret string
	ClientIP   string
	Pin        *Promise[string]
}

// PendingList tracks pairing attempts that still need a PIN, keyed by
// pair secret.
type PendingList struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

func NewPendingList() *PendingList {
	return &PendingList{requests: make(map[string]*Request)}
}

// Add registers a pairing attempt and returns its PIN promise.
func (p *PendingList) Add(pairSecret, clientIP string) *Request {
	req := &Request{
		PairSecret: pairSecret,
		ClientIP:   clientIP,
		Pin:        NewPromise[string](),
	}

	p.mu.Lock()
	p.requests[pairSecret] = req
	p.mu.Unlock()
	return req
}

// Get returns the pending request for the given pair secret.
func (p *PendingList) Get(pairSecret string) (*Request, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	req, ok := p.requests[pairSecret]
	return req, ok
}

// List returns a snapshot of the pending requests.
func (p *PendingList) List() []*Request {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Request, 0, len(p.requests))
	for _, req := range p.requests {
		out = append(out, req)
	}
	return out
}

// Remove drops a request, cancelling its promise if still unsettled so
// an abandoned attempt never leaves a waiter blocked.
func (p *PendingList) Remove(pairSecret string) {
	p.mu.Lock()
	req, ok := p.requests[pairSecret]
	delete(p.requests, pairSecret)
	p.mu.Unlock()

	if ok {
		req.Pin.Cancel(domain.ErrPairingAborted)
	}
}
