// Package booking implements slot lookup and reservation over the store.
package booking

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
)

const (
	// DefaultService is booked when the caller names none.
	DefaultService = "General Consultation"

	dateLayout = "2006-01-02"
)

// alternativeOffsets are the day offsets scanned when the requested day is full.
var alternativeOffsets = []int{-2, -1, 1, 2}

// DefaultOpeningTimes are seeded for local runs.
var DefaultOpeningTimes = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}

// Service looks up and reserves appointment slots.
type Service struct {
	store  repository.Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a booking service.
func New(store repository.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

// GetAvailableSlots returns the open times of date or, when there are none, the open times of
// the two days before and after it.
func (s *Service) GetAvailableSlots(ctx context.Context, date string) (*domain.SlotLookup, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	slots, err := s.openTimes(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 {
		return &domain.SlotLookup{Type: domain.SlotLookupSlots, Date: date, Slots: slots}, nil
	}

	found, err := iter.MapErr(alternativeOffsets, func(offset *int) (*domain.SlotAlternative, error) {
		alt := day.AddDate(0, 0, *offset).Format(dateLayout)
		times, err := s.openTimes(ctx, alt)
		if err != nil || len(times) == 0 {
			return nil, err
		}
		return &domain.SlotAlternative{Date: alt, SlotsCount: len(times), Slots: times}, nil
	})
	if err != nil {
		return nil, err
	}

	lookup := &domain.SlotLookup{Type: domain.SlotLookupAlternatives, OriginalDate: date, Alternatives: []domain.SlotAlternative{}}
	for _, alt := range found {
		if alt != nil {
			lookup.Alternatives = append(lookup.Alternatives, *alt)
		}
	}
	return lookup, nil
}

// openTimes returns the configured times of date minus the confirmed reservations.
func (s *Service) openTimes(ctx context.Context, date string) ([]string, error) {
	times, err := s.store.GetSlotDay(ctx, date)
	if err != nil || len(times) == 0 {
		return nil, err
	}
	reserved, err := s.store.ListReservedTimes(ctx, date)
	if err != nil {
		return nil, err
	}
	open := make([]string, 0, len(times))
	for _, t := range times {
		if !slices.Contains(reserved, t) {
			open = append(open, t)
		}
	}
	return open, nil
}

// ReserveSlot books time on date for userID.
func (s *Service) ReserveSlot(ctx context.Context, userID, date, tm, service string) (*domain.Reservation, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	times, err := s.store.GetSlotDay(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no appointments on %s", domain.ErrSlotUnavailable, date)
	}
	if !slices.Contains(times, tm) {
		return nil, fmt.Errorf("%w: %s is not an appointment time on %s", domain.ErrSlotUnavailable, tm, date)
	}
	if service == "" {
		service = DefaultService
	}

	res := &domain.Reservation{
		ID:        NewReservationID(),
		UserID:    userID,
		Date:      date,
		Time:      tm,
		Service:   service,
		Status:    domain.ReservationStatusConfirmed,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("reservation_id", res.ID).
		Str("user_id", userID).
		Str("date", date).
		Str("time", tm).
		Msg("slot reserved")
	return res, nil
}

// Seed configures DefaultOpeningTimes for days days starting at from, skipping Sundays and
// days that already have times.
func (s *Service) Seed(ctx context.Context, from time.Time, days int) (int, error) {
	seeded := 0
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i)
		if day.Weekday() == time.Sunday {
			continue
		}
		date := day.Format(dateLayout)
		existing, err := s.store.GetSlotDay(ctx, date)
		if err != nil {
			return seeded, err
		}
		if existing != nil {
			continue
		}
		if err := s.store.SetSlotDay(ctx, date, DefaultOpeningTimes); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// NewReservationID returns a 24 character lowercase hex id.
func NewReservationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func parseDate(date string) (time.Time, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, domain.NewValidationError("invalid date",
			domain.FieldError{Field: "date", Message: "must be a date in YYYY-MM-DD format"})
	}
	return t, nil
}
