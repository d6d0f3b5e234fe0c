package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tabletab-order-services/internal/config"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"go.uber.org/zap"
)

const testRestaurantID = "9b2f6c1e-5a84-4c1f-9f3d-2d7a41c08b55"

// Matches only the live-session lookup: the predicate is part of the match so
// a query that stopped excluding expired rows fails the test.
const activeSessionLookupSQL = `(?s)from bill_sessions\s+where restaurant_id = \$1 and code = \$2 and is_active and expires_at > now\(\)`

func newSessionTestHandler(t *testing.T) (*Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	h := &Handler{
		DB:     mock,
		Logger: zap.NewNop(),
		Config: config.Config{SessionTTL: 6 * time.Hour},
	}
	return h, mock
}

func sessionRow(id, code, tableID, deviceID string, createdAt, expiresAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "code", "restaurant_id", "table_id", "device_id", "is_active", "created_at", "expires_at"}).
		AddRow(id, code, testRestaurantID, tableID, deviceID, true, createdAt, expiresAt)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, map[string]any, string) {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   string         `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Success, envelope.Data, envelope.Error
}

func TestSessionCreateReusesActiveSession(t *testing.T) {
	h, mock := newSessionTestHandler(t)
	now := time.Now()

	mock.ExpectQuery(activeSessionLookupSQL).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnRows(sessionRow("sess-1", "9998887776", "5", "dev_owner", now, now.Add(time.Hour)))

	rec := httptest.NewRecorder()
	h.PublicSessionCreate(rec, postJSON("/api/public/bill-sessions",
		`{"restaurantId":"`+testRestaurantID+`","tableId":"5","ownerName":"Asha","code":"9998887776"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	success, data, _ := decodeEnvelope(t, rec)
	if !success {
		t.Fatalf("success = false, body %s", rec.Body.String())
	}
	if data["id"] != "sess-1" {
		t.Errorf("id = %v, want sess-1", data["id"])
	}
	if data["reused"] != true {
		t.Errorf("reused = %v, want true", data["reused"])
	}
	// No insert, no notify: the single lookup is the whole interaction.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionCreateInsertsWhenNoActiveSession(t *testing.T) {
	h, mock := newSessionTestHandler(t)

	mock.ExpectQuery(activeSessionLookupSQL).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`update bill_sessions set is_active = false`).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`(?s)insert into bill_sessions.*on conflict \(restaurant_id, code\) where is_active do nothing`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`pg_notify\('bill_session_updates'`).
		WithArgs(testRestaurantID + "|9998887776").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	rec := httptest.NewRecorder()
	h.PublicSessionCreate(rec, postJSON("/api/public/bill-sessions",
		`{"restaurantId":"`+testRestaurantID+`","tableId":"5","ownerName":"Asha","code":"9998887776"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	_, data, _ := decodeEnvelope(t, rec)
	if data["reused"] != false {
		t.Errorf("reused = %v, want false", data["reused"])
	}
	if data["code"] != "9998887776" {
		t.Errorf("code = %v, want 9998887776", data["code"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Two devices create under the same code at once: both miss the lookup, one
// insert lands, the other hits the unique active-code index and inserts zero
// rows. The loser must come back with the winner's session, not an error.
func TestSessionCreateAdoptsConcurrentWinner(t *testing.T) {
	h, mock := newSessionTestHandler(t)
	now := time.Now()

	mock.ExpectQuery(activeSessionLookupSQL).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`update bill_sessions set is_active = false`).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`(?s)insert into bill_sessions.*on conflict \(restaurant_id, code\) where is_active do nothing`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(activeSessionLookupSQL).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnRows(sessionRow("sess-winner", "9998887776", "5", "dev_other", now, now.Add(6*time.Hour)))

	rec := httptest.NewRecorder()
	h.PublicSessionCreate(rec, postJSON("/api/public/bill-sessions",
		`{"restaurantId":"`+testRestaurantID+`","tableId":"5","ownerName":"Ben","code":"9998887776"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	_, data, _ := decodeEnvelope(t, rec)
	if data["id"] != "sess-winner" {
		t.Errorf("id = %v, want sess-winner", data["id"])
	}
	if data["reused"] != true {
		t.Errorf("reused = %v, want true", data["reused"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionJoinUnknownCodeNotFound(t *testing.T) {
	h, mock := newSessionTestHandler(t)

	// Expired rows fall out of the same predicate, so a lapsed code joins
	// exactly like one that never existed.
	mock.ExpectQuery(activeSessionLookupSQL).
		WithArgs(testRestaurantID, "0000111122").
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	h.PublicSessionJoin(rec, postJSON("/api/public/bill-sessions/join",
		`{"restaurantId":"`+testRestaurantID+`","code":"0000111122"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
	success, _, errCode := decodeEnvelope(t, rec)
	if success {
		t.Error("success = true, want false")
	}
	if errCode != "SESSION_NOT_FOUND" {
		t.Errorf("error = %q, want SESSION_NOT_FOUND", errCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionResumeIgnoresExpiredSessions(t *testing.T) {
	h, mock := newSessionTestHandler(t)

	mock.ExpectQuery(`(?s)where restaurant_id = \$1 and table_id = \$2 and device_id = \$3\s+and is_active and expires_at > now\(\)`).
		WithArgs(testRestaurantID, "5", "dev_owner").
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	h.PublicSessionResume(rec, httptest.NewRequest(http.MethodGet,
		"/api/public/bill-sessions/resume?restaurantId="+testRestaurantID+"&tableId=5&deviceId=dev_owner", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	success, data, _ := decodeEnvelope(t, rec)
	if !success {
		t.Fatalf("success = false, body %s", rec.Body.String())
	}
	if data["session"] != nil {
		t.Errorf("session = %v, want null", data["session"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionSnapshotScopedToRestaurant(t *testing.T) {
	_, mock := newSessionTestHandler(t)

	// Codes repeat across restaurants, so the snapshot lookup carries both
	// keys. A code that only exists elsewhere resolves to nothing here.
	mock.ExpectQuery(`(?s)from bill_sessions\s+where restaurant_id = \$1 and code = \$2`).
		WithArgs(testRestaurantID, "9998887776").
		WillReturnError(pgx.ErrNoRows)

	payload, found, err := FetchSessionPayloadByCode(context.Background(), mock, testRestaurantID, "9998887776")
	if err != nil {
		t.Fatalf("FetchSessionPayloadByCode: %v", err)
	}
	if found {
		t.Errorf("found = true, want false; payload %v", payload)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
