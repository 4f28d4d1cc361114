// Package testutil provides testing utilities for the dashboard backend.
// This package contains a mock Home Assistant server speaking both the REST
// and the WebSocket API, and a full-stack test environment.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"familydash/internal/ha"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MockHAServer simulates a Home Assistant instance
type MockHAServer struct {
	server *httptest.Server
	token  string

	states   map[string]*ha.State
	statesMu sync.RWMutex

	bulkStatus    int
	entityStatus  map[string]int
	serviceStatus int
	latency       time.Duration
	failMu        sync.RWMutex

	requests   []string
	requestsMu sync.Mutex

	serviceCalls []ServiceCall // Track all service calls for verification
	callsMu      sync.Mutex    // Protects serviceCalls
}

// NewMockHAServer creates a new mock HA server accepting token
func NewMockHAServer(token string) *MockHAServer {
	return &MockHAServer{
		token:        token,
		states:       make(map[string]*ha.State),
		entityStatus: make(map[string]int),
		serviceCalls: make([]ServiceCall, 0),
	}
}

// Start starts the mock server on a random local port
func (s *MockHAServer) Start() error {
	r := chi.NewRouter()
	r.Get("/api/websocket", s.handleWebSocket)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/", s.handlePing)
		r.Get("/api/states", s.handleGetStates)
		r.Get("/api/states/{entityID}", s.handleGetState)
		r.Post("/api/services/{domain}/{service}", s.handleCallService)
	})

	s.server = httptest.NewServer(r)
	return nil
}

// Stop stops the mock server
func (s *MockHAServer) Stop() error {
	if s.server != nil {
		s.server.CloseClientConnections()
		s.server.Close()
	}
	return nil
}

// URL returns the base URL, e.g. http://127.0.0.1:34567
func (s *MockHAServer) URL() string {
	return s.server.URL
}

// SetState sets or replaces an entity state
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	now := time.Now().UTC()
	s.statesMu.Lock()
	s.states[entityID] = &ha.State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	s.statesMu.Unlock()
}

// GetState retrieves a state, nil if unknown
func (s *MockHAServer) GetState(entityID string) *ha.State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// RemoveState deletes an entity
func (s *MockHAServer) RemoveState(entityID string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, entityID)
}

// InitializeStates sets up a small household for testing
func (s *MockHAServer) InitializeStates() {
	s.SetState("light.kitchen", "off", map[string]interface{}{"friendly_name": "Küche"})
	s.SetState("light.living_room", "on", map[string]interface{}{"friendly_name": "Wohnzimmer", "brightness": 180})
	s.SetState("light.bath", "off", map[string]interface{}{"friendly_name": "Bad"})
	s.SetState("switch.garden_licht", "off", map[string]interface{}{"friendly_name": "Garten"})
	s.SetState("switch.pool_pump", "on", map[string]interface{}{"friendly_name": "Poolpumpe"})
	s.SetState("sensor.solar_power", "512", map[string]interface{}{"friendly_name": "Solar", "unit_of_measurement": "W"})
	s.SetState("sensor.outdoor_temperature", "14.5", map[string]interface{}{"friendly_name": "Außen", "unit_of_measurement": "°C"})
	s.SetState("binary_sensor.front_door", "off", map[string]interface{}{"friendly_name": "Haustür"})
}

// FailBulk makes the all-states endpoint answer status; 0 restores it
func (s *MockHAServer) FailBulk(status int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.bulkStatus = status
}

// FailEntity makes lookups of one entity answer status; 0 restores it
func (s *MockHAServer) FailEntity(entityID string, status int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if status == 0 {
		delete(s.entityStatus, entityID)
		return
	}
	s.entityStatus[entityID] = status
}

// FailServices makes every service call answer status; 0 restores it
func (s *MockHAServer) FailServices(status int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.serviceStatus = status
}

// SetLatency delays every request by d
func (s *MockHAServer) SetLatency(d time.Duration) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.latency = d
}

// Requests returns "METHOD path" for every REST request and the command
// type for every WebSocket command, in arrival order
func (s *MockHAServer) Requests() []string {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts recorded requests with the given prefix
func (s *MockHAServer) CountRequests(prefix string) int {
	count := 0
	for _, req := range s.Requests() {
		if strings.HasPrefix(req, prefix) {
			count++
		}
	}
	return count
}

func (s *MockHAServer) record(req string) {
	s.requestsMu.Lock()
	s.requests = append(s.requests, req)
	s.requestsMu.Unlock()

	s.failMu.RLock()
	latency := s.latency
	s.failMu.RUnlock()
	if latency > 0 {
		time.Sleep(latency)
	}
}

func (s *MockHAServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r.Method + " " + r.URL.EscapedPath())

		if r.Header.Get("Authorization") != "Bearer "+s.token {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, "401: Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *MockHAServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API running."})
}

func (s *MockHAServer) handleGetStates(w http.ResponseWriter, r *http.Request) {
	if status := s.bulkFailure(); status != 0 {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, s.allStates())
}

func (s *MockHAServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	entityID, err := url.PathUnescape(chi.URLParam(r, "entityID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid entity ID."})
		return
	}

	s.failMu.RLock()
	status := s.entityStatus[entityID]
	s.failMu.RUnlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}

	state := s.GetState(entityID)
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Entity not found."})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *MockHAServer) handleCallService(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Data should be valid JSON."})
		return
	}

	changed, status := s.callService(chi.URLParam(r, "domain"), chi.URLParam(r, "service"), data)
	if status != 0 {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, changed)
}

// handleWebSocket serves one session: auth handshake, then commands until
// the client hangs up
func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	conn.WriteJSON(ha.Message{Type: "auth_required", HAVersion: "2024.3.0"})

	var authMsg ha.AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}
	if authMsg.AccessToken != s.token {
		conn.WriteJSON(ha.Message{Type: "auth_invalid", Text: "Invalid access token or password"})
		return
	}
	conn.WriteJSON(ha.Message{Type: "auth_ok", HAVersion: "2024.3.0"})

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return
		}

		var base struct {
			ID   int    `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &base); err != nil {
			continue
		}
		s.record("ws " + base.Type)

		switch base.Type {
		case "get_states":
			if status := s.bulkFailure(); status != 0 {
				conn.WriteJSON(failedResult(base.ID, "unknown_error", http.StatusText(status)))
				continue
			}
			s.writeResult(conn, base.ID, s.allStates())

		case "call_service":
			var req ha.CallServiceRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			changed, status := s.callService(req.Domain, req.Service, req.ServiceData)
			if status != 0 {
				conn.WriteJSON(failedResult(base.ID, "home_assistant_error", http.StatusText(status)))
				continue
			}
			s.writeResult(conn, base.ID, map[string]interface{}{"changed_states": changed})

		default:
			conn.WriteJSON(failedResult(base.ID, "unknown_command", fmt.Sprintf("Unknown command %s.", base.Type)))
		}
	}
}

func (s *MockHAServer) writeResult(conn *websocket.Conn, id int, result interface{}) {
	data, _ := json.Marshal(result)
	success := true
	conn.WriteJSON(ha.Message{ID: id, Type: "result", Success: &success, Result: data})
}

func failedResult(id int, code, message string) ha.Message {
	success := false
	return ha.Message{ID: id, Type: "result", Success: &success, Error: &ha.Error{Code: code, Message: message}}
}

func (s *MockHAServer) bulkFailure() int {
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.bulkStatus
}

// allStates returns the states ordered by entity id
func (s *MockHAServer) allStates() []*ha.State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	states := make([]*ha.State, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
	return states
}

// callService records a call and applies toggle/turn_on/turn_off to the
// target entity. It returns the changed states, or a failure status.
func (s *MockHAServer) callService(domain, service string, data map[string]interface{}) ([]*ha.State, int) {
	s.failMu.RLock()
	status := s.serviceStatus
	s.failMu.RUnlock()
	if status != 0 {
		return nil, status
	}

	// Track the service call for test verification
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	s.callsMu.Unlock()

	entityID, _ := data["entity_id"].(string)
	current := s.GetState(entityID)
	if current == nil {
		return []*ha.State{}, 0
	}

	next := current.State
	switch service {
	case "toggle":
		next = "on"
		if current.State == "on" {
			next = "off"
		}
	case "turn_on":
		next = "on"
	case "turn_off":
		next = "off"
	default:
		return []*ha.State{}, 0
	}

	s.SetState(entityID, next, current.Attributes)
	return []*ha.State{s.GetState(entityID)}, 0
}

// GetServiceCalls returns all service calls since last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]ServiceCall, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}

// FindServiceCall finds the most recent service call matching criteria
// Returns nil if no matching call found
func (s *MockHAServer) FindServiceCall(domain, service string, entityID string) *ServiceCall {
	calls := s.GetServiceCalls()
	if entityID == "" {
		filtered := FilterServiceCalls(calls, domain, service)
		if len(filtered) == 0 {
			return nil
		}
		return &filtered[len(filtered)-1]
	}
	return FindServiceCallWithEntityID(calls, domain, service, entityID)
}

// CountServiceCalls counts service calls matching criteria
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	return len(FilterServiceCalls(s.GetServiceCalls(), domain, service))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
