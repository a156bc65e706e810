package transfer

import (
	"errors"
	"testing"
)

func TestPaymentURI(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		handle  string
		note    string
		want    string
		wantErr error
	}{
		{
			name:   "basic",
			amount: 1500,
			handle: "alice-v",
			note:   "focus pool",
			want:   "venmo://paycharge?txn=pay&amount=15.00&note=focus+pool&recipients=alice-v",
		},
		{
			name:   "strips at sign and pads cents",
			amount: 7,
			handle: " @bob ",
			want:   "venmo://paycharge?txn=pay&amount=0.07&recipients=bob",
		},
		{name: "empty handle", amount: 100, handle: "  ", wantErr: ErrInvalidRecipient},
		{name: "bare at sign", amount: 100, handle: "@", wantErr: ErrInvalidRecipient},
		{name: "zero amount", amount: 0, handle: "bob", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PaymentURI(tt.amount, tt.handle, tt.note)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("PaymentURI() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PaymentURI() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PaymentURI() = %q, want %q", got, tt.want)
			}
		})
	}
}
