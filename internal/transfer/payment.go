package transfer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidRecipient = errors.New("invalid payment recipient")
	ErrInvalidAmount    = errors.New("invalid payment amount")
)

// PaymentURI builds the Venmo deep link a collaborator opens to hand a
// transfer off to the payment app.
func PaymentURI(amountCents int64, recipientHandle, note string) (string, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(recipientHandle), "@")
	if handle == "" {
		return "", ErrInvalidRecipient
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, amountCents)
	}

	q := url.Values{}
	q.Set("recipients", handle)
	q.Set("amount", fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100))
	if note != "" {
		q.Set("note", note)
	}
	// Encode sorts keys; txn stays first like Venmo's own links.
	return "venmo://paycharge?txn=pay&" + q.Encode(), nil
}
