package bluetoothutil

import "testing"

func TestUARTUUIDsAreDefinedAndDistinct(t *testing.T) {
	service := UARTServiceUUID()
	rx := UARTRXUUID()
	tx := UARTTXUUID()

	if service == rx || service == tx {
		t.Fatalf("service UUID must be distinct from characteristic UUIDs")
	}
	if rx == tx {
		t.Fatalf("uart characteristic UUIDs must be distinct")
	}
	if got := service.String(); got != "6e400001-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Fatalf("unexpected service UUID: %s", got)
	}
}

func TestMustParseUUIDPanicsOnInvalidValue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid UUID")
		}
	}()
	_ = mustParseUUID("not-a-uuid")
}
