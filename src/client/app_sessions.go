package client

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/linecrypto/clearnode/src/storage"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultProtocol is the application protocol of new sessions.
	DefaultProtocol = "nitroliterpc"
	// DefaultQuorum is used when a request does not set one.
	DefaultQuorum = 100
	// DefaultAsset is used by the session templates.
	DefaultAsset = "usdc"

	appSessionPrefix = "app_session/"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// SessionStatus is open or closed.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// AppSessionRequest describes an application session to create.
type AppSessionRequest struct {
	Protocol     string
	Participants []string
	// Weights default to full control for the first participant.
	Weights []uint64
	// Quorum defaults to DefaultQuorum.
	Quorum    uint64
	Challenge uint64
	// Nonce defaults to the current time in milliseconds.
	Nonce       uint64
	Allocations []rpc.Allocation
}

// Validate checks the request and fills in defaults. It never touches the
// network.
func (r *AppSessionRequest) Validate() error {
	if len(r.Participants) < 2 {
		return invalid("participants", "at least 2 participants required, got %d", len(r.Participants))
	}
	if len(r.Allocations) == 0 {
		return invalid("allocations", "at least one allocation required")
	}

	members := make(map[string]bool, len(r.Participants))
	for i, p := range r.Participants {
		if p == "" {
			return invalid("participants", "participant %d is empty", i)
		}
		if keys.IsAddress(p) {
			members[strings.ToLower(p)] = true
		} else {
			members[p] = true
		}
	}
	if len(members) != len(r.Participants) {
		return invalid("participants", "duplicate participant")
	}

	if len(r.Weights) == 0 {
		r.Weights = make([]uint64, len(r.Participants))
		r.Weights[0] = 100
	}
	if len(r.Weights) != len(r.Participants) {
		return invalid("weights", "%d weights for %d participants", len(r.Weights), len(r.Participants))
	}

	var total uint64
	for _, w := range r.Weights {
		if total+w < total {
			return invalid("weights", "total weight overflows")
		}
		total += w
	}

	if r.Quorum == 0 {
		r.Quorum = DefaultQuorum
	}
	if r.Quorum > total {
		return invalid("quorum", "quorum %d exceeds total weight %d", r.Quorum, total)
	}

	for i, a := range r.Allocations {
		key := a.Participant
		if keys.IsAddress(key) {
			key = strings.ToLower(key)
		}
		if !members[key] {
			return invalid("allocations", "allocation %d: %s is not a participant", i, a.Participant)
		}
		if a.Asset == "" {
			return invalid("allocations", "allocation %d: missing asset", i)
		}
		if !decimalPattern.MatchString(a.Amount) {
			return invalid("allocations", "allocation %d: bad amount %q", i, a.Amount)
		}
	}

	if r.Protocol == "" {
		r.Protocol = DefaultProtocol
	}

	return nil
}

func (r *AppSessionRequest) params() rpc.CreateAppSessionParams {
	return rpc.CreateAppSessionParams{
		Definition: rpc.AppDefinition{
			Protocol:     r.Protocol,
			Participants: r.Participants,
			Weights:      r.Weights,
			Quorum:       r.Quorum,
			Challenge:    r.Challenge,
			Nonce:        r.Nonce,
		},
		Allocations: r.Allocations,
	}
}

// TwoPlayerSession gives a full control and the whole stake.
func TwoPlayerSession(a, b, amount, asset string) AppSessionRequest {
	if asset == "" {
		asset = DefaultAsset
	}
	return AppSessionRequest{
		Participants: []string{a, b},
		Weights:      []uint64{100, 0},
		Allocations: []rpc.Allocation{
			{Participant: a, Asset: asset, Amount: amount},
			{Participant: b, Asset: asset, Amount: "0"},
		},
	}
}

// GameSession adds server as the last participant, with full control.
func GameSession(players []string, server string) AppSessionRequest {
	all := append(append([]string{}, players...), server)

	weights := make([]uint64, len(all))
	weights[len(all)-1] = 100

	allocs := make([]rpc.Allocation, 0, len(all))
	for _, p := range all {
		allocs = append(allocs, rpc.Allocation{Participant: p, Asset: DefaultAsset, Amount: "0"})
	}

	return AppSessionRequest{
		Participants: all,
		Weights:      weights,
		Quorum:       100,
		Allocations:  allocs,
	}
}

// EqualPartnershipSession splits total evenly, rounding down, and requires a
// majority.
func EqualPartnershipSession(participants []string, total, asset string) (AppSessionRequest, error) {
	if len(participants) == 0 {
		return AppSessionRequest{}, invalid("participants", "no participants")
	}
	if asset == "" {
		asset = DefaultAsset
	}

	sum, err := strconv.ParseUint(total, 10, 64)
	if err != nil {
		return AppSessionRequest{}, invalid("amount", "bad total %q", total)
	}

	n := uint64(len(participants))
	share := strconv.FormatUint(sum/n, 10)

	weights := make([]uint64, len(participants))
	allocs := make([]rpc.Allocation, 0, len(participants))
	for i, p := range participants {
		weights[i] = 100 / n
		allocs = append(allocs, rpc.Allocation{Participant: p, Asset: asset, Amount: share})
	}

	return AppSessionRequest{
		Participants: participants,
		Weights:      weights,
		Quorum:       51,
		Allocations:  allocs,
	}, nil
}

// AppSession is the local record of an application session. Records are
// never deleted, only marked closed.
type AppSession struct {
	ID               string           `json:"id"`
	Status           SessionStatus    `json:"status"`
	Protocol         string           `json:"protocol"`
	Participants     []string         `json:"participants"`
	Weights          []uint64         `json:"weights"`
	Quorum           uint64           `json:"quorum"`
	Allocations      []rpc.Allocation `json:"allocations"`
	FinalAllocations []rpc.Allocation `json:"finalAllocations,omitempty"`
	Version          string           `json:"version,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	ClosedAt         *time.Time       `json:"closedAt,omitempty"`
}

func (s *AppSession) clone() *AppSession {
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.Weights = append([]uint64(nil), s.Weights...)
	c.Allocations = append([]rpc.Allocation(nil), s.Allocations...)
	c.FinalAllocations = append([]rpc.Allocation(nil), s.FinalAllocations...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// SessionStats counts the sessions in a registry.
type SessionStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Closed int `json:"closed"`
}

// SessionRegistry keeps application sessions by id and persists them when
// given a storage.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*AppSession
	store    storage.Storage
	logger   *logrus.Entry
}

// NewSessionRegistry loads the sessions persisted in store. store may be nil.
func NewSessionRegistry(store storage.Storage, logger *logrus.Entry) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]*AppSession),
		store:    store,
		logger:   logger,
	}
	r.load()
	return r
}

func (r *SessionRegistry) load() {
	if r.store == nil {
		return
	}

	ks, err := r.store.Keys(appSessionPrefix)
	if err != nil {
		r.logger.WithError(err).Warn("Listing app sessions")
		return
	}

	for _, k := range ks {
		data, err := r.store.Get(k)
		if err != nil {
			r.logger.WithError(err).WithField("key", k).Warn("Reading app session")
			continue
		}
		var s AppSession
		if err := common.UnmarshalCanonical(data, &s); err != nil || s.ID == "" {
			r.logger.WithField("key", k).Warn("Skipping corrupt app session")
			continue
		}
		r.sessions[s.ID] = &s
	}

	r.logger.WithField("sessions", len(r.sessions)).Debug("Loaded app sessions")
}

func (r *SessionRegistry) persistLocked(s *AppSession) {
	if r.store == nil {
		return
	}
	data, err := common.MarshalCanonical(s)
	if err != nil {
		r.logger.WithError(err).WithField("id", s.ID).Error("Encoding app session")
		return
	}
	if err := r.store.Set(appSessionPrefix+s.ID, data); err != nil {
		r.logger.WithError(err).WithField("id", s.ID).Error("Persisting app session")
	}
}

// Add records s, replacing any session with the same id.
func (r *SessionRegistry) Add(s *AppSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := s.clone()
	r.sessions[c.ID] = c
	r.persistLocked(c)
}

// Get returns a copy of the session.
func (r *SessionRegistry) Get(id string) (*AppSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// MarkClosed closes a known session. final may be nil. Closing twice keeps
// the first closing time.
func (r *SessionRegistry) MarkClosed(id string, final []rpc.Allocation, at time.Time) (*AppSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}

	if s.Status != SessionClosed {
		s.Status = SessionClosed
		t := at.UTC()
		s.ClosedAt = &t
	}
	if final != nil {
		s.FinalAllocations = append([]rpc.Allocation(nil), final...)
	}

	r.persistLocked(s)
	return s.clone(), true
}

// Update applies a status and version reported by the broker to a known
// session.
func (r *SessionRegistry) Update(id string, status SessionStatus, version string, at time.Time) (*AppSession, bool) {
	if status == SessionClosed {
		s, ok := r.MarkClosed(id, nil, at)
		if ok && version != "" {
			r.mu.Lock()
			r.sessions[id].Version = version
			r.persistLocked(r.sessions[id])
			r.mu.Unlock()
			s.Version = version
		}
		return s, ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if version != "" {
		s.Version = version
	}
	r.persistLocked(s)
	return s.clone(), true
}

// All returns every session, oldest first.
func (r *SessionRegistry) All() []*AppSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*AppSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		res = append(res, s.clone())
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

// Active returns the open sessions, oldest first.
func (r *SessionRegistry) Active() []*AppSession {
	res := []*AppSession{}
	for _, s := range r.All() {
		if s.Status == SessionOpen {
			res = append(res, s)
		}
	}
	return res
}

// Stats ...
func (r *SessionRegistry) Stats() SessionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := SessionStats{Total: len(r.sessions)}
	for _, s := range r.sessions {
		if s.Status == SessionClosed {
			st.Closed++
		} else {
			st.Active++
		}
	}
	return st
}

func (s SessionStats) String() string {
	return fmt.Sprintf("total=%d active=%d closed=%d", s.Total, s.Active, s.Closed)
}
