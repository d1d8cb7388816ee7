package wsapi

import (
	"encoding/json"
	"testing"

	"github.com/erauner12/listd/internal/mutation"
	"github.com/google/uuid"
)

func TestToWireUpdates_SetToIDMarshalsTheID(t *testing.T) {
	target := uuid.New()
	deltas := map[uuid.UUID]mutation.PointerDelta{}
	nodeID := uuid.New()
	p := &target
	deltas[nodeID] = mutation.PointerDelta{Prev: &p}

	out := toWireUpdates(deltas)
	data, err := json.Marshal(out[nodeID.String()])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Prev *uuid.UUID `json:"prev"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Prev == nil || *decoded.Prev != target {
		t.Fatalf("expected prev to decode back to %s, got %v", target, decoded.Prev)
	}
}

func TestToWireUpdates_SetToNilMarshalsJSONNull(t *testing.T) {
	deltas := map[uuid.UUID]mutation.PointerDelta{}
	nodeID := uuid.New()
	var nilID *uuid.UUID
	deltas[nodeID] = mutation.PointerDelta{Prev: &nilID}

	out := toWireUpdates(deltas)
	data, err := json.Marshal(out[nodeID.String()])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	prevField, present := raw["prev"]
	if !present {
		t.Fatalf("expected the prev key to be present on the wire when it was explicitly set to nil")
	}
	if string(prevField) != "null" {
		t.Fatalf("expected prev to marshal to JSON null, got %s", prevField)
	}
}

func TestToWireUpdates_UnchangedFieldIsOmitted(t *testing.T) {
	deltas := map[uuid.UUID]mutation.PointerDelta{}
	nodeID := uuid.New()
	target := uuid.New()
	p := &target
	deltas[nodeID] = mutation.PointerDelta{Next: &p} // Prev left nil: unchanged

	out := toWireUpdates(deltas)
	data, err := json.Marshal(out[nodeID.String()])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := raw["prev"]; present {
		t.Fatalf("expected the prev key to be omitted entirely when unchanged, got %s", data)
	}
	if _, present := raw["next"]; !present {
		t.Fatalf("expected the next key to be present")
	}
}
