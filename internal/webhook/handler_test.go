package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/internal/metrics"
	"github.com/donorscope/donorscope/internal/store"
	"github.com/donorscope/donorscope/pkg/donor"
)

var testSecret = []byte("webhook-secret-123")

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"external_ref":"ch_1"}`)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		wantErr   bool
	}{
		{"valid signature", payload, Sign(payload, testSecret), false},
		{"wrong secret", payload, Sign(payload, []byte("wrong-secret")), true},
		{"tampered payload", []byte(`{"external_ref":"ch_2"}`), Sign(payload, testSecret), true},
		{"missing sha256= prefix", payload, "not-a-valid-sig", true},
		{"invalid hex after prefix", payload, "sha256=zzzz", true},
		{"empty signature", payload, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifySignature(tc.payload, tc.signature, testSecret)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseEvent_Gift(t *testing.T) {
	data := []byte(`{"external_ref":"ch_1","donor_id":"donor-1","amount":"250.50","received_on":"2026-02-15","source":"stripe"}`)

	event, err := ParseEvent(EventGiftCreated, data)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	gift, ok := event.(*GiftEvent)
	if !ok {
		t.Fatalf("expected *GiftEvent, got %T", event)
	}
	if !gift.Amount.Equal(decimal.RequireFromString("250.50")) {
		t.Errorf("amount = %s", gift.Amount)
	}
	if gift.ReceivedOn.String() != "2026-02-15" {
		t.Errorf("received_on = %s", gift.ReceivedOn)
	}
	if err := gift.Validate(donor.NewDate(2026, 3, 1)); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseEvent_UnsupportedType(t *testing.T) {
	_, err := ParseEvent("gift.refunded", []byte(`{}`))
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseEvent(EventGiftCreated, []byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestGiftEvent_Validate(t *testing.T) {
	err := (&GiftEvent{Amount: decimal.NewFromInt(-5)}).Validate(donor.NewDate(2026, 3, 1))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"external_ref", "donor_id", "amount", "received_on"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s in %v", field, err)
		}
	}
}

func TestGiftEvent_ValidateReceivedOn(t *testing.T) {
	today := donor.NewDate(2026, 3, 1)
	tests := []struct {
		name       string
		receivedOn donor.Date
		wantErr    bool
	}{
		{"yesterday", donor.NewDate(2026, 2, 28), false},
		{"today", today, false},
		{"tomorrow", donor.NewDate(2026, 3, 2), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &GiftEvent{ExternalRef: "ch_1", DonorID: "donor-1", Amount: decimal.NewFromInt(10), ReceivedOn: tc.receivedOn}
			err := e.Validate(today)
			if tc.wantErr && (err == nil || !strings.Contains(err.Error(), "in the future")) {
				t.Errorf("expected future date error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

type fakeRecorder struct {
	seen  map[string]bool
	donor store.Donor
	err   error
}

func (f *fakeRecorder) RecordGift(ctx context.Context, g store.Gift) (*store.Donor, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if g.DonorID != f.donor.ID {
		return nil, false, fmt.Errorf("lock donor %s: %w", g.DonorID, store.ErrNotFound)
	}
	d := f.donor
	if f.seen[g.ExternalRef] {
		return &d, false, nil
	}
	f.seen[g.ExternalRef] = true
	f.donor.Record = f.donor.Record.ApplyGift(g.Amount, g.ReceivedOn)
	d = f.donor
	return &d, true, nil
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{
		seen:  map[string]bool{},
		donor: store.Donor{ID: "donor-1", Record: donor.Record{ID: "D-1", GiftCount: 2}},
	}
}

func post(h http.Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gifts", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	if event != "" {
		req.Header.Set(EventHeader, event)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func giftBody(ref, donorID string) []byte {
	b, _ := json.Marshal(map[string]string{
		"external_ref": ref,
		"donor_id":     donorID,
		"amount":       "100",
		"received_on":  "2026-02-15",
		"source":       "stripe",
	})
	return b
}

func TestHandler_RecordsGiftIdempotently(t *testing.T) {
	recorder := newRecorder()
	h := NewHandler(testSecret, recorder, zerolog.Nop(), metrics.New())
	body := giftBody("ch_1", "donor-1")

	rec := post(h, EventGiftCreated, body, Sign(body, testSecret))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp giftResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "recorded" || resp.GiftCount != 3 {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = post(h, EventGiftCreated, body, Sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "duplicate" || resp.GiftCount != 3 {
		t.Errorf("unexpected duplicate response %+v", resp)
	}
}

func TestHandler_Rejections(t *testing.T) {
	valid := giftBody("ch_1", "donor-1")
	invalid := []byte(`{"external_ref":"ch_2","donor_id":"donor-1","amount":"0","received_on":"2026-02-15"}`)
	unknownDonor := giftBody("ch_3", "donor-9")
	future := []byte(`{"external_ref":"ch_4","donor_id":"donor-1","amount":"100","received_on":"2099-01-01"}`)

	tests := []struct {
		name      string
		event     string
		body      []byte
		signature string
		want      int
	}{
		{"bad signature", EventGiftCreated, valid, Sign(valid, []byte("nope")), http.StatusUnauthorized},
		{"missing event header", "", valid, Sign(valid, testSecret), http.StatusBadRequest},
		{"unknown event", "gift.refunded", valid, Sign(valid, testSecret), http.StatusBadRequest},
		{"invalid gift", EventGiftCreated, invalid, Sign(invalid, testSecret), http.StatusBadRequest},
		{"unknown donor", EventGiftCreated, unknownDonor, Sign(unknownDonor, testSecret), http.StatusNotFound},
		{"gift in the future", EventGiftCreated, future, Sign(future, testSecret), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(testSecret, newRecorder(), zerolog.Nop(), nil)
			rec := post(h, tc.event, tc.body, tc.signature)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestHandler_FutureGiftNotRecorded(t *testing.T) {
	recorder := newRecorder()
	h := NewHandler(testSecret, recorder, zerolog.Nop(), nil)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	body := []byte(`{"external_ref":"ch_9","donor_id":"donor-1","amount":"100","received_on":"2026-03-02"}`)

	rec := post(h, EventGiftCreated, body, Sign(body, testSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(recorder.seen) != 0 || recorder.donor.Record.GiftCount != 2 {
		t.Error("future gift reached the store")
	}
}

func TestHandler_StoreError(t *testing.T) {
	recorder := newRecorder()
	recorder.err = errors.New("connection reset")
	h := NewHandler(testSecret, recorder, zerolog.Nop(), nil)
	body := giftBody("ch_1", "donor-1")

	rec := post(h, EventGiftCreated, body, Sign(body, testSecret))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error details leaked to caller")
	}
}

func TestHandler_Ping(t *testing.T) {
	h := NewHandler(testSecret, newRecorder(), zerolog.Nop(), nil)
	body := []byte(`{"zen":"give generously"}`)

	rec := post(h, EventPing, body, Sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(testSecret, newRecorder(), zerolog.Nop(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/gifts", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
