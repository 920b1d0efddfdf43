package event

import (
	"encoding/json"
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"mutation applied", TypeMutationApplied, true},
		{"request propagated", TypeRequestPropagated, true},
		{"task parked", TypeTaskParked, true},
		{"cache reconciled", TypeCacheReconciled, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeMutationApplied, "req-1", map[string]interface{}{KeyAction: "SUBMIT"})

	if evt.ID == "" {
		t.Fatal("expected generated ID")
	}
	if evt.CorrelationID != evt.ID {
		t.Errorf("CorrelationID = %v, want %v", evt.CorrelationID, evt.ID)
	}
	if evt.RequestID != "req-1" {
		t.Errorf("RequestID = %v, want req-1", evt.RequestID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if got := evt.GetPayloadString(KeyAction); got != "SUBMIT" {
		t.Errorf("GetPayloadString() = %v, want SUBMIT", got)
	}

	other := NewEvent(TypeMutationApplied, "req-1", nil)
	if other.ID == evt.ID {
		t.Error("expected unique IDs")
	}
}

func TestEvent_Follow(t *testing.T) {
	parent := NewEvent(TypeMutationApplied, "req-1", nil)
	child := parent.Follow(TypeRequestPropagated, map[string]interface{}{KeySeq: int64(7)})

	if child.ID == parent.ID {
		t.Error("follow-up event must get its own ID")
	}
	if child.CorrelationID != parent.CorrelationID {
		t.Errorf("CorrelationID = %v, want %v", child.CorrelationID, parent.CorrelationID)
	}
	if child.RequestID != "req-1" || child.Type != TypeRequestPropagated {
		t.Errorf("unexpected follow-up event %+v", child)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeTaskParked, "req-1", map[string]interface{}{KeyAttempts: 3})
	updated := original.WithPayload(KeyError, "timeout")

	if _, ok := original.Payload[KeyError]; ok {
		t.Error("original payload was modified")
	}
	if updated.GetPayloadString(KeyError) != "timeout" {
		t.Errorf("updated payload = %v", updated.Payload)
	}
	if updated.GetPayloadInt(KeyAttempts) != 3 {
		t.Errorf("existing key lost: %v", updated.Payload)
	}
	if updated.ID != original.ID {
		t.Error("WithPayload must keep the event identity")
	}
}

func TestEvent_GetPayloadInt(t *testing.T) {
	evt := NewEvent(TypeCacheReconciled, "", map[string]interface{}{
		KeyUpserted: 4,
		KeyRemoved:  int64(2),
		KeySkipped:  float64(1),
		KeySource:   "INVESTMENT_REQUESTS",
	})

	tests := []struct {
		key  string
		want int64
	}{
		{KeyUpserted, 4},
		{KeyRemoved, 2},
		{KeySkipped, 1},
		{KeySource, 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := evt.GetPayloadInt(tt.key); got != tt.want {
			t.Errorf("GetPayloadInt(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestEvent_JSONRoundTripKeepsNumbers(t *testing.T) {
	evt := NewEvent(TypeTaskParked, "req-9", map[string]interface{}{KeySeq: int64(42)})

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if decoded.GetPayloadInt(KeySeq) != 42 {
		t.Errorf("seq after round trip = %v", decoded.Payload[KeySeq])
	}
	if decoded.RequestID != "req-9" {
		t.Errorf("RequestID after round trip = %v", decoded.RequestID)
	}
}
