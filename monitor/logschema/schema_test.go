package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("order_placed", map[string]interface{}{
		"symbol": "XRPUSDC",
		"side":   "buy",
		"level":  "99.0000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("order_placed", map[string]interface{}{
		"symbol": "XRPUSDC",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestValidateUnknownEventPasses(t *testing.T) {
	if err := Validate("no_such_event", nil); err != nil {
		t.Fatalf("unknown events must not fail validation: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "cycle_complete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("cycle_complete not found in schemas")
	}
}
