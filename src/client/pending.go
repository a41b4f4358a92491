package client

import (
	"sync"
	"time"

	"github.com/linecrypto/clearnode/src/rpc"
)

type response struct {
	msg *rpc.Message
	err error
}

type pendingRequest struct {
	id      uint64
	method  rpc.Method
	created time.Time
	timer   *time.Timer
	// foreign responses leave the client's own state alone
	foreign bool
	// buffered so resolution never blocks
	result chan response
}

// pendingTable correlates outstanding requests with their responses. An
// entry is removed exactly once, by whichever of response, timeout,
// cancellation or disconnect gets to it first.
type pendingTable struct {
	mu    sync.Mutex
	items map[uint64]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{items: make(map[uint64]*pendingRequest)}
}

// add registers id. onTimeout runs if the entry is still present after
// timeout.
func (p *pendingTable) add(id uint64, method rpc.Method, timeout time.Duration, onTimeout func(uint64)) *pendingRequest {
	req := &pendingRequest{
		id:      id,
		method:  method,
		created: time.Now(),
		result:  make(chan response, 1),
	}

	p.mu.Lock()
	p.items[id] = req
	if timeout > 0 {
		req.timer = time.AfterFunc(timeout, func() { onTimeout(id) })
	}
	p.mu.Unlock()

	return req
}

// take removes and returns the entry for id. Later calls for the same id
// return false.
func (p *pendingTable) take(id uint64) (*pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.items[id]
	if !ok {
		return nil, false
	}
	delete(p.items, id)
	if req.timer != nil {
		req.timer.Stop()
	}
	return req, true
}

// drain removes every entry.
func (p *pendingTable) drain() []*pendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := make([]*pendingRequest, 0, len(p.items))
	for id, req := range p.items {
		if req.timer != nil {
			req.timer.Stop()
		}
		res = append(res, req)
		delete(p.items, id)
	}
	return res
}

func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (r *pendingRequest) resolve(res response) {
	r.result <- res
}

func (p *pendingTable) has(id uint64) bool {
	_, ok := p.get(id)
	return ok
}

// get returns the entry for id without removing it.
func (p *pendingTable) get(id uint64) (*pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.items[id]
	return req, ok
}
