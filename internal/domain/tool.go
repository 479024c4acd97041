package domain

import (
	"encoding/json"
	"time"
)

// ToolDescriptor describes a registered tool. It is read-only at request time.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Parameters   json.RawMessage `json:"parameters"`
	AllowedRoles []Role          `json:"allowed_roles"`
}

// ToolCallDecision is a tool invocation proposed by the model.
type ToolCallDecision struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of a tool execution. Never persisted.
type ToolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Failure builds an unsuccessful ToolResult.
func Failure(msg string) *ToolResult {
	return &ToolResult{Success: false, Message: msg}
}

// Action is a UI affordance rendered as a button.
type Action struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Value ActionValue `json:"value"`
	Style string      `json:"style"`
	Icon  string      `json:"icon,omitempty"`
}

// ActionValue is sent back by the client when the button is pressed.
type ActionValue struct {
	Action string `json:"action"`
	Step   string `json:"step,omitempty"`
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`
}

// SlotLookup is the result of a slot availability query.
type SlotLookup struct {
	Type         SlotLookupType    `json:"type"`
	Date         string            `json:"date,omitempty"`
	Slots        []string          `json:"slots,omitempty"`
	OriginalDate string            `json:"originalDate,omitempty"`
	Alternatives []SlotAlternative `json:"alternatives,omitempty"`
}

// HasSlots reports whether the lookup found open slots on the requested day.
func (l *SlotLookup) HasSlots() bool {
	return l != nil && l.Type == SlotLookupSlots && len(l.Slots) > 0
}

// SlotAlternative lists open slots on a nearby day.
type SlotAlternative struct {
	Date       string   `json:"date"`
	SlotsCount int      `json:"slotsCount"`
	Slots      []string `json:"slots"`
}

// Reservation is a confirmed booking of one slot.
type Reservation struct {
	ID        string            `json:"reservationId"`
	UserID    string            `json:"userId"`
	Date      string            `json:"date"`
	Time      string            `json:"time"`
	Service   string            `json:"service"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CheckoutSession is a payment session created for a reservation.
type CheckoutSession struct {
	ID            string        `json:"sessionId"`
	ReservationID string        `json:"reservationId"`
	URL           string        `json:"checkoutUrl"`
	AmountCents   int64         `json:"amountCents"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// AppointmentDetails describes a booking in an admin notification.
type AppointmentDetails struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Service string `json:"service,omitempty"`
}

// OutboxMessage is an email queued for delivery.
type OutboxMessage struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
