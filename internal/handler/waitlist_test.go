package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	q "github.com/iliyamo/event-waitlist/internal/queue"
	"github.com/iliyamo/event-waitlist/internal/repository"
	"github.com/iliyamo/event-waitlist/internal/service"
)

type noopOracle struct{ registered bool }

func (o noopOracle) IsUserRegistered(ctx context.Context, eventID uint64, email string) (bool, error) {
	return o.registered, nil
}

func (o noopOracle) ConfirmedCount(ctx context.Context, eventID uint64) (int64, error) {
	return 0, nil
}

type noopBridge struct{}

func (noopBridge) PublishInvitationCreated(ctx context.Context, msg q.WaitlistInvitationMessage) error {
	return nil
}

func (noopBridge) PublishAutoConfirm(ctx context.Context, msg q.AutoConfirmMessage) error {
	return nil
}

func (noopBridge) PublishWaitlistNotification(ctx context.Context, msg q.WaitlistNotificationMessage) error {
	return nil
}

func newWaitlistHandler(t *testing.T, oracle noopOracle) (*WaitlistHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewWaitlistService(
		repository.NewEventRepo(db),
		repository.NewWaitlistRepo(db),
		oracle, noopBridge{}, 5, 24*time.Hour)
	return NewWaitlistHandler(svc), mock
}

// newContext builds an Echo context the way the JWT middleware leaves it:
// caller email in the context, event id as the :id path parameter.
func newContext(method, target, email, eventID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if email != "" {
		c.Set("email", email)
	}
	c.SetParamNames("id")
	c.SetParamValues(eventID)
	return c, rec
}

func TestWaitlistHandler_Join_InvalidEventID(t *testing.T) {
	h, _ := newWaitlistHandler(t, noopOracle{})

	c, rec := newContext(http.MethodPost, "/v1/events/abc/waitlist/join", "alice@example.com", "abc")
	require.NoError(t, h.Join(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWaitlistHandler_Join_MissingIdentity(t *testing.T) {
	h, _ := newWaitlistHandler(t, noopOracle{})

	c, rec := newContext(http.MethodPost, "/v1/events/7/waitlist/join", "", "7")
	require.NoError(t, h.Join(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWaitlistHandler_Join_AlreadyRegistered(t *testing.T) {
	h, mock := newWaitlistHandler(t, noopOracle{registered: true})

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM events WHERE id = \?`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "event_date", "location", "max_capacity",
			"waitlist_enabled", "created_at", "updated_at",
		}).AddRow(7, "Go Conference", now, "Berlin", nil, true, now, now))

	c, rec := newContext(http.MethodPost, "/v1/events/7/waitlist/join", "alice@example.com", "7")
	require.NoError(t, h.Join(c))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "already registered")
}

func TestWaitlistHandler_Join_ReturnsTitledEntry(t *testing.T) {
	h, mock := newWaitlistHandler(t, noopOracle{})

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM events WHERE id = \?`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "event_date", "location", "max_capacity",
			"waitlist_enabled", "created_at", "updated_at",
		}).AddRow(7, "Go Conference", now, "Berlin", nil, true, now, now))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM events WHERE id = \? FOR UPDATE`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`SELECT (.+) FROM waitlist_entries WHERE event_id = \? AND user_email = \? FOR UPDATE`).
		WithArgs(uint64(7), "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "user_email", "position", "status",
			"notification_sent", "expires_at", "created_at", "updated_at",
		}))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(position\), 0\)`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO waitlist_entries`).
		WithArgs(uint64(7), "alice@example.com", 1, "WAITING", false).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	c, rec := newContext(http.MethodPost, "/v1/events/7/waitlist/join", "alice@example.com", "7")
	require.NoError(t, h.Join(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Go Conference", body["eventTitle"], "join payload carries the event title like position does")
	require.Equal(t, float64(1), body["position"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistHandler_Position_NotQueued(t *testing.T) {
	h, mock := newWaitlistHandler(t, noopOracle{})

	mock.ExpectQuery(`SELECT (.+) FROM waitlist_entries WHERE event_id = \? AND user_email = \?`).
		WithArgs(uint64(7), "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "user_email", "position", "status",
			"notification_sent", "expires_at", "created_at", "updated_at",
		}))

	c, rec := newContext(http.MethodGet, "/v1/events/7/waitlist/position", "alice@example.com", "7")
	require.NoError(t, h.Position(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaitlistHandler_Position_ReturnsEntry(t *testing.T) {
	h, mock := newWaitlistHandler(t, noopOracle{})

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM waitlist_entries WHERE event_id = \? AND user_email = \?`).
		WithArgs(uint64(7), "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "user_email", "position", "status",
			"notification_sent", "expires_at", "created_at", "updated_at",
		}).AddRow(10, 7, "alice@example.com", 3, "WAITING", false, nil, now, now))
	mock.ExpectQuery(`SELECT (.+) FROM events WHERE id = \?`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "event_date", "location", "max_capacity",
			"waitlist_enabled", "created_at", "updated_at",
		}).AddRow(7, "Go Conference", now, "Berlin", nil, true, now, now))

	c, rec := newContext(http.MethodGet, "/v1/events/7/waitlist/position", "alice@example.com", "7")
	require.NoError(t, h.Position(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(3), body["position"])
	require.Equal(t, "WAITING", body["status"])
	require.Equal(t, "Go Conference", body["eventTitle"])
}

func TestWaitlistHandler_Count(t *testing.T) {
	h, mock := newWaitlistHandler(t, noopOracle{})

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM waitlist_entries`).
		WithArgs(uint64(7), "WAITING").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))

	c, rec := newContext(http.MethodGet, "/v1/events/7/waitlist/count", "", "7")
	require.NoError(t, h.Count(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(4), body["count"])
}

func TestWaitlistHandler_Redistribute_InvalidSlots(t *testing.T) {
	h, _ := newWaitlistHandler(t, noopOracle{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/7/waitlist/redistribute/zero", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "slots")
	c.SetParamValues("7", "zero")

	require.NoError(t, h.Redistribute(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
