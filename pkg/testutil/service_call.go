package testutil

import "time"

// ServiceCall records a service call received by MockHAServer
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// Matches reports whether the call targets domain.service
func (c ServiceCall) Matches(domain, service string) bool {
	return c.Domain == domain && c.Service == service
}

// EntityID returns the entity_id from the call data, or ""
func (c ServiceCall) EntityID() string {
	id, _ := c.ServiceData["entity_id"].(string)
	return id
}

// FilterServiceCalls filters service calls by domain and service
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	var filtered []ServiceCall
	for _, call := range calls {
		if call.Matches(domain, service) {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// FindServiceCallWithEntityID returns the most recent call to
// domain.service for entityID, or nil
func FindServiceCallWithEntityID(calls []ServiceCall, domain, service, entityID string) *ServiceCall {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Matches(domain, service) && calls[i].EntityID() == entityID {
			call := calls[i]
			return &call
		}
	}
	return nil
}
