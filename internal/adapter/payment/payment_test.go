package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
	"github.com/xiaot623/gogo/concierge/tests/helpers"
)

func seedReservation(t *testing.T, store repository.Store) {
	t.Helper()
	require.NoError(t, store.CreateReservation(context.Background(), &domain.Reservation{
		ID: "r1", UserID: "u1", Date: "2025-05-01", Time: "09:00",
		Service: "General Consultation", Status: domain.ReservationStatusConfirmed, CreatedAt: time.Now(),
	}))
}

func testConfig() config.PaymentConfig {
	return config.PaymentConfig{PublicURL: "https://book.example.com/", DepositCents: 5000, Currency: "eur", Timeout: time.Second}
}

func TestCreateBookingPaymentHosted(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seedReservation(t, store)
	svc := New(store, testConfig(), zerolog.Nop())

	session, err := svc.CreateBookingPayment(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.ID, "cs_"))
	assert.True(t, strings.HasPrefix(session.URL, "https://book.example.com/pay/"+session.ID))
	assert.Equal(t, int64(5000), session.AmountCents)
	assert.Equal(t, "EUR", session.Currency)

	latest, err := store.GetLatestPayment(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, session.ID, latest.ID)
}

func TestCreateBookingPaymentUnknownReservation(t *testing.T) {
	svc := New(helpers.NewTestSQLiteStore(t), testConfig(), zerolog.Nop())
	_, err := svc.CreateBookingPayment(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CreateBookingPayment(context.Background(), "", "u1")
	assert.Error(t, err)
}

func TestCreateBookingPaymentOtherUsersReservation(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	seedReservation(t, store)
	svc := New(store, testConfig(), zerolog.Nop())

	_, err := svc.CreateBookingPayment(context.Background(), "r1", "u2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	latest, err := store.GetLatestPayment(context.Background(), "r1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestHTTPGateway(t *testing.T) {
	var got CheckoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_remote","url":"https://pay.example.com/cs_remote"}`))
	}))
	defer srv.Close()

	store := helpers.NewTestSQLiteStore(t)
	seedReservation(t, store)
	cfg := testConfig()
	cfg.GatewayURL = srv.URL
	cfg.APIKey = "sk_test"
	svc := New(store, cfg, zerolog.Nop())

	session, err := svc.CreateBookingPayment(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "cs_remote", session.ID)
	assert.Equal(t, "https://pay.example.com/cs_remote", session.URL)
	assert.Equal(t, "r1", got.ReservationID)
	assert.Equal(t, int64(5000), got.AmountCents)
	assert.Equal(t, "https://book.example.com/payment/success?reservationId=r1", got.SuccessURL)
}

func TestHTTPGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "card declined", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, _, err := NewHTTPGateway(srv.URL, "", time.Second).CreateCheckout(context.Background(), CheckoutRequest{ReservationID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}
