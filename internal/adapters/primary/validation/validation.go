package validation

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// MaxSearchLength bounds the search term forwarded to the ticket API.
const MaxSearchLength = 200

// Errors collects field-level validation failures.
type Errors struct {
	Fields map[string]string `json:"fields"`
}

func (e *Errors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator validates request data
type Validator struct {
	errors map[string]string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{errors: make(map[string]string)}
}

// add keeps the first failure recorded for a field.
func (v *Validator) add(field, message string) {
	if _, exists := v.errors[field]; !exists {
		v.errors[field] = message
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Err returns the collected failures, or nil when there are none.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &Errors{Fields: v.errors}
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// Min validates minimum integer value
func (v *Validator) Min(field string, value, min int) *Validator {
	if value < min {
		v.add(field, "Must be at least "+strconv.Itoa(min))
	}
	return v
}

// OneOf validates value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v // Empty is handled by Required
	}

	for _, a := range allowed {
		if value == a {
			return v
		}
	}

	v.add(field, "Must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.add(field, message)
	}
	return v
}

// TicketListParams are the optional query parameters of the ticket list.
// A nil field was not supplied.
type TicketListParams struct {
	Page   *int
	Search *string
	Status *domain.TicketStatus
}

// Empty reports whether no parameter was supplied.
func (p TicketListParams) Empty() bool {
	return p.Page == nil && p.Search == nil && p.Status == nil
}

// ParseTicketListParams extracts and validates page, search and status. A
// present but empty status clears the filter.
func ParseTicketListParams(r *http.Request) (TicketListParams, error) {
	var params TicketListParams
	q := r.URL.Query()
	v := NewValidator()

	if q.Has("page") {
		page, err := strconv.Atoi(q.Get("page"))
		v.Custom("page", err == nil, "Must be an integer")
		if err == nil {
			v.Min("page", page, 1)
			params.Page = &page
		}
	}

	if q.Has("search") {
		search := strings.TrimSpace(q.Get("search"))
		v.MaxLength("search", search, MaxSearchLength)
		params.Search = &search
	}

	if q.Has("status") {
		status := strings.ToUpper(strings.TrimSpace(q.Get("status")))
		v.OneOf("status", status, []string{
			string(domain.StatusOpen),
			string(domain.StatusInProgress),
			string(domain.StatusClosed),
		})
		s := domain.TicketStatus(status)
		params.Status = &s
	}

	if err := v.Err(); err != nil {
		return TicketListParams{}, err
	}
	return params, nil
}

// TicketID validates a ticket id taken from the path.
func TicketID(id string) error {
	return NewValidator().
		Required("id", id).
		MaxLength("id", id, 128).
		Err()
}
