package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// Names of the built-in tools.
const (
	ToolGetAvailableSlots     = "getAvailableSlots"
	ToolReserveSlot           = "reserveSlot"
	ToolCreateBookingPayment  = "createBookingPayment"
	ToolSendConfirmationEmail = "sendConfirmationEmail"
	ToolSendAdminConfEmail    = "sendAdminConfEmail"
	ToolValidateUser          = "validateUser"
)

var (
	everyone  = []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleAdmin}
	staffOnly = []domain.Role{domain.RoleAssistant, domain.RoleAdmin}
)

// SlotFinder looks up open slots.
type SlotFinder interface {
	GetAvailableSlots(ctx context.Context, date string) (*domain.SlotLookup, error)
}

// Reserver books slots.
type Reserver interface {
	ReserveSlot(ctx context.Context, userID, date, time, service string) (*domain.Reservation, error)
}

// PaymentCreator opens checkout sessions for reservations.
type PaymentCreator interface {
	CreateBookingPayment(ctx context.Context, reservationID, userID string) (*domain.CheckoutSession, error)
}

// Notifier sends booking emails.
type Notifier interface {
	SendConfirmation(ctx context.Context, reservationID string) (string, error)
	SendAdminConfirmation(ctx context.Context, customerEmail string, details domain.AppointmentDetails) (string, error)
}

// UserVerifier checks user credentials.
type UserVerifier interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

// Capabilities are the external collaborators the built-in tools call.
type Capabilities struct {
	Slots    SlotFinder
	Reserver Reserver
	Payments PaymentCreator
	Mail     Notifier
	Users    UserVerifier
}

// RegisterBuiltins registers the booking tools on r.
func RegisterBuiltins(r *Registry, caps Capabilities) error {
	builtins := []struct {
		desc domain.ToolDescriptor
		exec ExecutorFunc
	}{
		{
			desc: domain.ToolDescriptor{
				Name:         ToolGetAvailableSlots,
				Description:  "List the open appointment times for a date (YYYY-MM-DD). When the date has none, nearby dates with open times are returned instead.",
				Parameters:   json.RawMessage(getAvailableSlotsSchema),
				AllowedRoles: everyone,
			},
			exec: getAvailableSlots(caps.Slots),
		},
		{
			desc: domain.ToolDescriptor{
				Name:         ToolReserveSlot,
				Description:  "Reserve an open time (HH:MM) on a date (YYYY-MM-DD) for the current user. A deposit checkout link is created with the reservation.",
				Parameters:   json.RawMessage(reserveSlotSchema),
				AllowedRoles: everyone,
			},
			exec: reserveSlot(caps.Reserver, caps.Payments),
		},
		{
			desc: domain.ToolDescriptor{
				Name:         ToolCreateBookingPayment,
				Description:  "Create a deposit checkout link for one of the current user's reservations.",
				Parameters:   json.RawMessage(createBookingPaymentSchema),
				AllowedRoles: everyone,
			},
			exec: createBookingPayment(caps.Payments),
		},
		{
			desc: domain.ToolDescriptor{
				Name:         ToolSendConfirmationEmail,
				Description:  "Email the booking confirmation for a reservation to its owner.",
				Parameters:   json.RawMessage(sendConfirmationEmailSchema),
				AllowedRoles: everyone,
			},
			exec: sendConfirmationEmail(caps.Mail),
		},
		{
			desc: domain.ToolDescriptor{
				Name:         ToolSendAdminConfEmail,
				Description:  "Notify the administrator of a booking made for a customer.",
				Parameters:   json.RawMessage(sendAdminConfEmailSchema),
				AllowedRoles: staffOnly,
			},
			exec: sendAdminConfEmail(caps.Mail),
		},
		{
			desc: domain.ToolDescriptor{
				Name:         ToolValidateUser,
				Description:  "Check a customer's username and password.",
				Parameters:   json.RawMessage(validateUserSchema),
				AllowedRoles: staffOnly,
			},
			exec: validateUser(caps.Users),
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.desc, b.exec); err != nil {
			return err
		}
	}
	return nil
}

func getAvailableSlots(slots SlotFinder) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			Date string `json:"date"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		lookup, err := slots.GetAvailableSlots(ctx, args.Date)
		if err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Available times on %s", args.Date)
		if lookup.Type == domain.SlotLookupAlternatives {
			if len(lookup.Alternatives) == 0 {
				msg = fmt.Sprintf("No times available on %s or the surrounding days", args.Date)
			} else {
				msg = fmt.Sprintf("No times available on %s. Nearby dates:", args.Date)
			}
		}
		return &domain.ToolResult{Success: true, Message: msg, Data: lookup}, nil
	}
}

type reservationData struct {
	ReservationID string `json:"reservationId"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Service       string `json:"service"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
}

func reserveSlot(reserver Reserver, payments PaymentCreator) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			Date    string `json:"date"`
			Time    string `json:"time"`
			Service string `json:"service"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		res, err := reserver.ReserveSlot(ctx, call.Caller.ID, args.Date, args.Time, args.Service)
		if err != nil {
			return nil, err
		}

		data := reservationData{ReservationID: res.ID, Date: res.Date, Time: res.Time, Service: res.Service}
		msg := fmt.Sprintf("Reserved %s at %s", res.Date, res.Time)
		session, err := payments.CreateBookingPayment(ctx, res.ID, call.Caller.ID)
		if err != nil {
			msg += fmt.Sprintf(", but the deposit link could not be created: %v", err)
		} else {
			data.CheckoutURL = session.URL
			msg += ". Deposit link created"
		}
		return &domain.ToolResult{Success: true, Message: msg, Data: data}, nil
	}
}

func createBookingPayment(payments PaymentCreator) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			ReservationID string `json:"reservationId"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		session, err := payments.CreateBookingPayment(ctx, args.ReservationID, call.Caller.ID)
		if err != nil {
			return nil, err
		}
		return &domain.ToolResult{Success: true, Message: "Checkout session created", Data: session}, nil
	}
}

func sendConfirmationEmail(mail Notifier) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			ReservationID string `json:"reservationId"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		msg, err := mail.SendConfirmation(ctx, args.ReservationID)
		if err != nil {
			return nil, err
		}
		return &domain.ToolResult{Success: true, Message: msg}, nil
	}
}

func sendAdminConfEmail(mail Notifier) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			Email              string                    `json:"email"`
			AppointmentDetails domain.AppointmentDetails `json:"appointmentDetails"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		msg, err := mail.SendAdminConfirmation(ctx, args.Email, args.AppointmentDetails)
		if err != nil {
			return nil, err
		}
		return &domain.ToolResult{Success: true, Message: msg}, nil
	}
}

func validateUser(users UserVerifier) ExecutorFunc {
	return func(ctx context.Context, call Call) (*domain.ToolResult, error) {
		var args struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := call.Decode(&args); err != nil {
			return nil, err
		}
		u, err := users.Authenticate(ctx, args.Username, args.Password)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Failure("Invalid username or password"), nil
		}
		if err != nil {
			return nil, err
		}
		return &domain.ToolResult{
			Success: true,
			Message: "User validated",
			Data:    map[string]string{"userId": u.ID, "username": u.Username},
		}, nil
	}
}
