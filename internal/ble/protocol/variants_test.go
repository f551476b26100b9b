package protocol

import (
	"errors"
	"testing"
)

func TestLookupVariant(t *testing.T) {
	tests := []struct {
		id        byte
		name      string
		alias     string
		typeCode  int
		wantError bool
	}{
		{id: 205, name: "Petkit_W5C", alias: "W5C", typeCode: 2},
		{id: 206, name: "Petkit_W5", alias: "W5", typeCode: 1},
		{id: 213, name: "Petkit_W5N", alias: "W5N", typeCode: 3},
		{id: 214, name: "Petkit_W4X", alias: "W4X", typeCode: 4},
		{id: 217, name: "Petkit_CTW2", alias: "CTW2", typeCode: 5},
		{id: 228, name: "Petkit_W4XUVC", alias: "W4X", typeCode: 6},
		{id: 1, wantError: true},
	}
	for _, tt := range tests {
		v, err := LookupVariant(tt.id)
		if tt.wantError {
			if !errors.Is(err, ErrUnknownVariant) {
				t.Errorf("LookupVariant(%d) error = %v, want ErrUnknownVariant", tt.id, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("LookupVariant(%d) error = %v", tt.id, err)
		}
		if v.Name != tt.name || v.Alias != tt.alias || v.TypeCode != tt.typeCode || v.DeviceType != 14 {
			t.Errorf("LookupVariant(%d) = %+v", tt.id, v)
		}
	}
}

func TestVariantFromServiceData(t *testing.T) {
	v, err := VariantFromServiceData([]byte{0, 0, 0, 0, 0, 217, 9})
	if err != nil {
		t.Fatalf("VariantFromServiceData() error = %v", err)
	}
	if v.ReadableName() != "Petkit CTW2" {
		t.Errorf("ReadableName() = %q, want %q", v.ReadableName(), "Petkit CTW2")
	}

	if _, err := VariantFromServiceData([]byte{0, 0, 0, 0, 0}); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("short service data error = %v, want ErrUnknownVariant", err)
	}
}

func TestIsFountainName(t *testing.T) {
	for name, want := range map[string]bool{
		"Petkit_W5C":    true,
		"Petkit_W4XUVC": true,
		"Petkit_CTW2":   true,
		"W4X":           true,
		"Petkit_K3":     false,
		"Headphones":    false,
		"":              false,
	} {
		if got := IsFountainName(name); got != want {
			t.Errorf("IsFountainName(%q) = %v, want %v", name, got, want)
		}
	}
}
