package tools

import (
	"log/slog"
	"time"
)

// Catalog returns the built-in pet-care tool specs. The engine owns only the
// metadata (schemas, validation rules, dependencies, cache and timeout
// tiers); handlers come from the provided lookup, typically business
// services or MCP adapters. Tools the lookup cannot serve are skipped.
func Catalog(handlerFor func(name string) Handler) []Spec {
	all := []Spec{
		{
			Name:        "lookup_customer",
			Description: "Find a customer record by phone number or full name.",
			Parameters: objectSchema(map[string]any{
				"phone": map[string]any{"type": "string", "description": "Customer phone number"},
				"name":  map[string]any{"type": "string", "description": "Customer full name"},
			}, nil),
			Timeout:        5 * time.Second,
			Cacheable:      true,
			TTL:            2 * time.Minute,
			CacheKeyFields: []string{"phone", "name"},
			InjectArgs:     injectCustomerIdentity,
		},
		{
			Name:        "get_pet_records",
			Description: "Fetch the pets and medical notes on file for a customer.",
			Parameters: objectSchema(map[string]any{
				"customer_id": map[string]any{"type": "string"},
			}, []string{"customer_id"}),
			Rules:          map[string]any{"customer_id": "required"},
			Requires:       []string{"lookup_customer"},
			Timeout:        5 * time.Second,
			Cacheable:      true,
			TTL:            2 * time.Minute,
			CacheKeyFields: []string{"customer_id"},
		},
		{
			Name:        "list_services",
			Description: "List the grooming and veterinary services this business offers.",
			Parameters:  objectSchema(map[string]any{}, nil),
			Timeout:     5 * time.Second,
			Cacheable:   true,
			TTL:         5 * time.Minute,
		},
		{
			Name:        "list_locations",
			Description: "List the business locations with addresses and opening hours.",
			Parameters:  objectSchema(map[string]any{}, nil),
			Timeout:     5 * time.Second,
			Cacheable:   true,
			TTL:         10 * time.Minute,
		},
		{
			Name:        "list_staff",
			Description: "List staff members, optionally filtered by location.",
			Parameters: objectSchema(map[string]any{
				"location_id": map[string]any{"type": "string"},
			}, nil),
			Timeout:        5 * time.Second,
			Cacheable:      true,
			TTL:            5 * time.Minute,
			CacheKeyFields: []string{"location_id"},
		},
		{
			Name:        "check_availability",
			Description: "Check open appointment slots for a service around a requested time.",
			Parameters: objectSchema(map[string]any{
				"service_id": map[string]any{"type": "string"},
				"time":       map[string]any{"type": "string", "description": "Requested date and time, e.g. 2026-09-01T14:00"},
				"staff_id":   map[string]any{"type": "string"},
			}, []string{"service_id", "time"}),
			Rules: map[string]any{
				"service_id": "required",
				"time":       "required,futuretime",
			},
			Timeout:        5 * time.Second,
			Cacheable:      true,
			TTL:            15 * time.Second,
			CacheKeyFields: []string{"service_id", "time", "staff_id"},
		},
		{
			Name:        "list_appointments",
			Description: "List the customer's upcoming appointments.",
			Parameters: objectSchema(map[string]any{
				"phone": map[string]any{"type": "string"},
				"name":  map[string]any{"type": "string"},
			}, nil),
			Timeout:        5 * time.Second,
			Cacheable:      true,
			TTL:            30 * time.Second,
			CacheKeyFields: []string{"phone", "name"},
			InjectArgs:     injectCustomerIdentity,
		},
		{
			Name:        "book_appointment",
			Description: "Book an appointment for a service, pet, and time slot.",
			Parameters: objectSchema(map[string]any{
				"service_id":  map[string]any{"type": "string"},
				"pet_name":    map[string]any{"type": "string"},
				"time":        map[string]any{"type": "string", "description": "Date and time, e.g. 2026-09-01T14:00"},
				"location_id": map[string]any{"type": "string"},
				"staff_id":    map[string]any{"type": "string"},
			}, []string{"service_id", "time"}),
			Rules: map[string]any{
				"service_id": "required",
				"time":       "required,futuretime",
			},
			Timeout: 20 * time.Second,
		},
		{
			Name:        "reschedule_appointment",
			Description: "Move an existing appointment to a new time.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": map[string]any{"type": "string"},
				"new_time":       map[string]any{"type": "string", "description": "New date and time, e.g. 2026-09-01T14:00"},
			}, []string{"appointment_id", "new_time"}),
			Rules: map[string]any{
				"appointment_id": "required",
				"new_time":       "required,futuretime",
			},
			Requires: []string{"list_appointments"},
			Timeout:  20 * time.Second,
		},
		{
			Name:        "cancel_appointment",
			Description: "Cancel an existing appointment.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": map[string]any{"type": "string"},
			}, []string{"appointment_id"}),
			Rules:    map[string]any{"appointment_id": "required"},
			Requires: []string{"list_appointments"},
			Timeout:  20 * time.Second,
		},
	}

	result := make([]Spec, 0, len(all))
	for _, spec := range all {
		handler := handlerFor(spec.Name)
		if handler == nil {
			slog.Warn("No handler available for catalog tool, skipping", "tool", spec.Name)
			continue
		}
		spec.Handler = handler
		result = append(result, spec)
	}

	return result
}

// injectCustomerIdentity builds arguments for customer-scoped lookups from
// facts the conversation has already established. No facts, no injection.
func injectCustomerIdentity(facts map[string]string) (map[string]any, bool) {
	if phone, ok := facts["customer_phone"]; ok && phone != "" {
		return map[string]any{"phone": phone}, true
	}
	if name, ok := facts["customer_name"]; ok && name != "" {
		return map[string]any{"name": name}, true
	}
	return nil, false
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
