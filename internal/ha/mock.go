package ha

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"familydash/internal/apperr"
)

// MockClient implements HAClient in memory for testing
type MockClient struct {
	states   map[string]*State
	statesMu sync.RWMutex

	pingErr      error
	allStatesErr error
	stateErrs    map[string]error
	serviceErr   error
	stateDelay   time.Duration
	errMu        sync.RWMutex

	stateLookups []string
	allLookups   int
	inFlight     int
	maxInFlight  int
	lookupsMu    sync.Mutex

	serviceCalls []ServiceCall
	callsMu      sync.Mutex
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:       make(map[string]*State),
		stateErrs:    make(map[string]error),
		serviceCalls: make([]ServiceCall, 0),
	}
}

// Ping returns the configured ping error
func (m *MockClient) Ping(ctx context.Context) error {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.pingErr
}

// GetState retrieves a mock state. Unknown entities yield a 404 upstream
// error, like the REST API.
func (m *MockClient) GetState(ctx context.Context, entityID string) (*State, error) {
	m.lookupsMu.Lock()
	m.stateLookups = append(m.stateLookups, entityID)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.lookupsMu.Unlock()

	defer func() {
		m.lookupsMu.Lock()
		m.inFlight--
		m.lookupsMu.Unlock()
	}()

	m.errMu.RLock()
	delay := m.stateDelay
	err := m.stateErrs[entityID]
	m.errMu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperr.Upstream(0, nil, ctx.Err())
		}
	}

	if err != nil {
		return nil, err
	}

	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, apperr.Upstream(http.StatusNotFound, map[string]interface{}{"message": "Entity not found."},
			fmt.Errorf("entity %s not found", entityID))
	}

	return state, nil
}

// GetAllStates retrieves all mock states
func (m *MockClient) GetAllStates(ctx context.Context) ([]*State, error) {
	m.lookupsMu.Lock()
	m.allLookups++
	m.lookupsMu.Unlock()

	m.errMu.RLock()
	err := m.allStatesErr
	m.errMu.RUnlock()
	if err != nil {
		return nil, err
	}

	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}

	return states, nil
}

// CallService records a service call and flips toggled entities
func (m *MockClient) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	m.errMu.RLock()
	err := m.serviceErr
	m.errMu.RUnlock()
	if err != nil {
		return err
	}

	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	if entityID, ok := data["entity_id"].(string); ok && service == "toggle" {
		m.toggle(entityID)
	}

	return nil
}

// SetState sets a mock state (for testing)
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	now := time.Now()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// SetPingError makes Ping fail with err
func (m *MockClient) SetPingError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.pingErr = err
}

// SetAllStatesError makes GetAllStates fail with err
func (m *MockClient) SetAllStatesError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.allStatesErr = err
}

// SetStateError makes GetState fail with err for one entity
func (m *MockClient) SetStateError(entityID string, err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.stateErrs[entityID] = err
}

// SetServiceError makes CallService fail with err
func (m *MockClient) SetServiceError(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.serviceErr = err
}

// SetStateDelay makes every GetState wait for d before answering
func (m *MockClient) SetStateDelay(d time.Duration) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.stateDelay = d
}

// StateLookups returns the entity ids passed to GetState, in call order
func (m *MockClient) StateLookups() []string {
	m.lookupsMu.Lock()
	defer m.lookupsMu.Unlock()
	return append([]string(nil), m.stateLookups...)
}

// AllStatesLookups returns how often GetAllStates was called
func (m *MockClient) AllStatesLookups() int {
	m.lookupsMu.Lock()
	defer m.lookupsMu.Unlock()
	return m.allLookups
}

// MaxInFlight returns the highest number of concurrent GetState calls seen
func (m *MockClient) MaxInFlight() int {
	m.lookupsMu.Lock()
	defer m.lookupsMu.Unlock()
	return m.maxInFlight
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = make([]ServiceCall, 0)
}

func (m *MockClient) toggle(entityID string) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()

	state, ok := m.states[entityID]
	if !ok {
		return
	}

	next := "on"
	if state.State == "on" {
		next = "off"
	}

	now := time.Now()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       next,
		Attributes:  state.Attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}
