// Package approval tracks actions waiting for a human decision and the
// session-scoped allow-list built from "approve for session" answers.
package approval

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/protocol"
)

var (
	ErrGateClosed      = errors.New("approval: gate closed")
	ErrUnknownRequest  = errors.New("approval: no outstanding request with this id")
	ErrAlreadyResolved = errors.New("approval: request already resolved")
	ErrInvalidDecision = errors.New("approval: invalid decision")
)

// Kind is the class of action a request gates.
type Kind int

const (
	KindExec Kind = iota
	KindApplyPatch
	KindToolCall
)

func (k Kind) String() string {
	switch k {
	case KindExec:
		return "exec"
	case KindApplyPatch:
		return "apply_patch"
	case KindToolCall:
		return "tool_call"
	}
	return "unknown"
}

// Pending is one outstanding request. It resolves exactly once.
type Pending struct {
	ID        string
	Kind      Kind
	CallID    string
	CreatedAt time.Time

	key  Key
	done chan protocol.ReviewDecision
}

// Wait blocks until the request is resolved. A cancelled ctx counts as a
// denial.
func (p *Pending) Wait(ctx context.Context) protocol.ReviewDecision {
	select {
	case d := <-p.done:
		return d
	case <-ctx.Done():
		return protocol.DecisionDenied
	}
}

// Gate owns all pending requests of one session.
type Gate struct {
	mu       sync.Mutex
	seq      uint64
	pending  map[string]*Pending
	resolved map[string]protocol.ReviewDecision
	closed   bool

	allowMu sync.RWMutex
	allow   map[Key]struct{}

	log *logger.Logger
	now func() time.Time

	opened    atomic.Int64
	decisions atomic.Int64
	anomalies atomic.Int64
	drained   atomic.Int64
}

func NewGate() *Gate {
	return &Gate{
		pending:  make(map[string]*Pending),
		resolved: make(map[string]protocol.ReviewDecision),
		allow:    make(map[Key]struct{}),
		log:      logger.Global().WithPrefix("approval"),
		now:      time.Now,
	}
}

// Open registers a new request under a fresh id.
func (g *Gate) Open(kind Kind, key Key, callID string) (*Pending, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGateClosed
	}
	g.seq++
	p := &Pending{
		ID:        strconv.FormatUint(g.seq, 10),
		Kind:      kind,
		CallID:    callID,
		CreatedAt: g.now(),
		key:       key,
		done:      make(chan protocol.ReviewDecision, 1),
	}
	g.pending[p.ID] = p
	g.opened.Add(1)
	g.log.Debug("opened %s request %s for call %s", kind, p.ID, callID)
	return p, nil
}

// Resolve delivers a decision. A second decision for the same id, or one
// for an id never issued, is rejected and changes nothing.
func (g *Gate) Resolve(id string, decision protocol.ReviewDecision) error {
	if !decision.Valid() {
		g.anomalies.Add(1)
		return ErrInvalidDecision
	}

	g.mu.Lock()
	p, ok := g.pending[id]
	if !ok {
		_, seen := g.resolved[id]
		g.mu.Unlock()
		g.anomalies.Add(1)
		if seen {
			g.log.Warn("ignoring decision %q for already resolved request %s", decision, id)
			return ErrAlreadyResolved
		}
		g.log.Warn("ignoring decision %q for unknown request %s", decision, id)
		return ErrUnknownRequest
	}
	delete(g.pending, id)
	g.resolved[id] = decision
	g.mu.Unlock()

	if decision == protocol.DecisionApprovedForSession {
		g.allowForSession(p.key)
	}
	g.decisions.Add(1)
	p.done <- decision
	g.log.Debug("request %s resolved: %s", id, decision)
	return nil
}

// Withdraw denies an outstanding request whose waiter gave up. Unlike
// Resolve it is not an anomaly when the request is already gone.
func (g *Gate) Withdraw(id string) bool {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
		g.resolved[id] = protocol.DecisionDenied
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	p.done <- protocol.DecisionDenied
	g.log.Debug("request %s withdrawn", id)
	return true
}

// Close denies every outstanding request and refuses new ones. It returns
// the number of requests it denied.
func (g *Gate) Close() int {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0
	}
	g.closed = true
	outstanding := g.pending
	g.pending = make(map[string]*Pending)
	for id := range outstanding {
		g.resolved[id] = protocol.DecisionDenied
	}
	g.mu.Unlock()

	g.log.Info("closing gate, denying %d pending requests", len(outstanding))
	for _, p := range outstanding {
		p.done <- protocol.DecisionDenied
	}
	g.drained.Add(int64(len(outstanding)))
	return len(outstanding)
}

// Outstanding lists unresolved request ids in issue order.
func (g *Gate) Outstanding() []string {
	g.mu.Lock()
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(ids[i], 10, 64)
		b, _ := strconv.ParseUint(ids[j], 10, 64)
		return a < b
	})
	return ids
}

func (g *Gate) allowForSession(key Key) {
	g.allowMu.Lock()
	g.allow[key] = struct{}{}
	g.allowMu.Unlock()
}

// IsApprovedForSession reports whether an earlier "approve for session"
// covers key.
func (g *Gate) IsApprovedForSession(key Key) bool {
	g.allowMu.RLock()
	defer g.allowMu.RUnlock()
	_, ok := g.allow[key]
	return ok
}

// GetMetrics returns counters for diagnostics.
func (g *Gate) GetMetrics() map[string]int64 {
	g.mu.Lock()
	outstanding := int64(len(g.pending))
	g.mu.Unlock()
	return map[string]int64{
		"opened":          g.opened.Load(),
		"decisions":       g.decisions.Load(),
		"anomalies":       g.anomalies.Load(),
		"denied_on_close": g.drained.Load(),
		"outstanding":     outstanding,
	}
}
