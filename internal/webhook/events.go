// Package webhook receives signed gift notifications from a payment processor.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/pkg/donor"
)

// Headers and event types.
const (
	SignatureHeader = "X-Donorscope-Signature"
	EventHeader     = "X-Donorscope-Event"

	EventGiftCreated = "gift.created"
	EventPing        = "ping"
)

// ErrUnsupportedEvent is returned by ParseEvent for unknown event types.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// VerifySignature validates a "sha256=<hex>" HMAC of the payload.
func VerifySignature(payload []byte, signature string, secret []byte) error {
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("invalid signature format")
	}
	sig, err := hex.DecodeString(signature[7:])
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(sig, expected) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign returns the signature header value for payload.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// GiftEvent is the body of a gift.created event.
type GiftEvent struct {
	ExternalRef string          `json:"external_ref"`
	DonorID     string          `json:"donor_id"`
	Amount      decimal.Decimal `json:"amount"`
	ReceivedOn  donor.Date      `json:"received_on"`
	Source      string          `json:"source"`
}

// Validate checks the required fields. A gift received after today is
// rejected: it would move the donor's last gift date into the future.
func (e *GiftEvent) Validate(today donor.Date) error {
	var errs []error
	if e.ExternalRef == "" {
		errs = append(errs, &donor.FieldError{Field: "external_ref", Reason: "is required"})
	}
	if e.DonorID == "" {
		errs = append(errs, &donor.FieldError{Field: "donor_id", Reason: "is required"})
	}
	if !e.Amount.IsPositive() {
		errs = append(errs, &donor.FieldError{Field: "amount", Reason: "must be positive"})
	}
	switch {
	case e.ReceivedOn.IsZero():
		errs = append(errs, &donor.FieldError{Field: "received_on", Reason: "is required"})
	case e.ReceivedOn.After(today):
		errs = append(errs, &donor.FieldError{Field: "received_on", Reason: e.ReceivedOn.String() + " is in the future"})
	}
	return errors.Join(errs...)
}

// PingEvent is sent when a processor registers the endpoint.
type PingEvent struct {
	Zen string `json:"zen"`
}

// ParseEvent parses a webhook payload based on the event type.
func ParseEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case EventGiftCreated:
		var e GiftEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parse %s event: %w", eventType, err)
		}
		return &e, nil
	case EventPing:
		var e PingEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parse ping event: %w", err)
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}
