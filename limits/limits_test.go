package limits

import (
	"errors"
	"testing"
)

func TestHeaderSizeLayout(t *testing.T) {
	if HeaderSize != 1+4+8 {
		t.Errorf("HeaderSize = %d, want %d", HeaderSize, 1+4+8)
	}
	if MaxPayload+HeaderSize != MaxDatagram {
		t.Errorf("MaxPayload + HeaderSize = %d, want %d", MaxPayload+HeaderSize, MaxDatagram)
	}
	if SafePayload+HeaderSize+28 != 1500 {
		t.Errorf("SafePayload does not fit a 1500 byte MTU")
	}
}

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		max     int
		wantErr error
	}{
		{"empty", nil, 10, ErrMessageEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDatagram(t *testing.T) {
	if err := ValidateDatagram(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty datagram: got %v", err)
	}
	if err := ValidateDatagram(make([]byte, MaxDatagram)); err != nil {
		t.Errorf("max datagram: unexpected error %v", err)
	}
	if err := ValidateDatagram(make([]byte, MaxDatagram+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversize datagram: got %v", err)
	}
}

func TestFitsMTU(t *testing.T) {
	if !FitsMTU(0) || !FitsMTU(SafePayload) {
		t.Errorf("payloads up to SafePayload should fit")
	}
	if FitsMTU(SafePayload + 1) {
		t.Errorf("SafePayload+1 should not fit")
	}
	// The classic 1472 byte payload fragments once the 13 byte header is added.
	if FitsMTU(1472) {
		t.Errorf("1472 byte payload should not fit")
	}
}

func TestValidatePayloadSize(t *testing.T) {
	tests := []struct {
		size    int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{SafePayload, false},
		{MaxPayload, false},
		{MaxPayload + 1, true},
	}
	for _, tt := range tests {
		err := ValidatePayloadSize(tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePayloadSize(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
		}
	}
}
