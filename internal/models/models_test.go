package models

import (
	"encoding/json"
	"testing"
)

// The publisher marshals an EmailJob and the mail worker unmarshals the
// delivery body; both sides must agree on the wire shape.
func TestEmailJobQueueRoundTrip(t *testing.T) {
	sent := EmailJob{
		Email:   "a@x.com",
		Subject: "Reset your password",
		Link:    "http://rollout.test/forgot?id=YUB4LmNvbTpkZWFkYmVlZg==",
	}

	body, err := json.Marshal(sent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var received EmailJob
	if err := json.Unmarshal(body, &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if received != sent {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", received, sent)
	}
}

func TestEmailJobWireKeys(t *testing.T) {
	body, err := json.Marshal(EmailJob{Email: "a@x.com", Subject: "s", Link: "l"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]string
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"to", "subject", "link"} {
		if _, ok := wire[key]; !ok {
			t.Fatalf("missing wire key %q in %s", key, body)
		}
	}
}
