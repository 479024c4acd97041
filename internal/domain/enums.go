// Package domain defines the core domain models for the concierge service.
package domain

// Role is the authorization role carried by a verified caller.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAdmin:
		return true
	}
	return false
}

// TurnRole is the author of a conversation turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
	TurnRoleTool      TurnRole = "tool"
)

// EventType represents the type of a stream event.
type EventType string

const (
	EventTypeStart    EventType = "start"
	EventTypeToken    EventType = "token"
	EventTypeToolCall EventType = "tool_call"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// Terminal reports whether the event type ends a stream.
func (t EventType) Terminal() bool {
	return t == EventTypeComplete || t == EventTypeError
}

// ResponseType distinguishes plain answers from structured button responses.
type ResponseType string

const (
	ResponseTypeText   ResponseType = "text"
	ResponseTypeButton ResponseType = "button_response"
)

// SlotLookupType is the shape of a slot lookup result.
type SlotLookupType string

const (
	SlotLookupSlots        SlotLookupType = "slots"
	SlotLookupAlternatives SlotLookupType = "alternatives"
)

// ReservationStatus represents the status of a reservation.
type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// PaymentStatus represents the status of a checkout session.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)
