package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/polycross/relaybot/internal/domain"
)

func validEnvelope() Envelope {
	return Envelope{
		MessageID: uuid.New(),
		Origin:    5,
		Sender:    "0x2000000000000000000000000000000000000002",
		Dest:      1,
		Recipient: "0x1000000000000000000000000000000000000001",
		Payload:   []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestEnvelopeValidate(t *testing.T) {
	if err := validEnvelope().Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"missing message id", func(e *Envelope) { e.MessageID = uuid.Nil }},
		{"empty sender", func(e *Envelope) { e.Sender = "" }},
		{"non-hex sender", func(e *Envelope) { e.Sender = "not-an-address" }},
		{"short recipient", func(e *Envelope) { e.Recipient = "0x1234" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEnvelope()
			tc.mutate(&e)
			if err := e.Validate(); !errors.Is(err, domain.ErrDecode) {
				t.Errorf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	in := validEnvelope()

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Envelope
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.MessageID != in.MessageID {
		t.Errorf("message id = %s, want %s", out.MessageID, in.MessageID)
	}
	if out.Origin != in.Origin || out.Dest != in.Dest {
		t.Errorf("domains = %d/%d, want %d/%d", out.Origin, out.Dest, in.Origin, in.Dest)
	}
	if out.Sender != in.Sender || out.Recipient != in.Recipient {
		t.Errorf("addresses = %s/%s, want %s/%s", out.Sender, out.Recipient, in.Sender, in.Recipient)
	}
	if string(out.Payload) != string(in.Payload) {
		t.Errorf("payload = %x, want %x", out.Payload, in.Payload)
	}
}
