package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVariant is returned for a hardware identifier outside the table.
var ErrUnknownVariant = errors.New("protocol: unknown device variant")

// Variant describes one fountain hardware model.
type Variant struct {
	Name        string
	Alias       string
	ProductName string
	DeviceType  int
	TypeCode    int
}

// ReadableName is Name with underscores replaced by spaces.
func (v Variant) ReadableName() string {
	return strings.ReplaceAll(v.Name, "_", " ")
}

var variants = map[byte]Variant{
	205: {Name: "Petkit_W5C", Alias: "W5C", ProductName: "Eversweet Mini", DeviceType: 14, TypeCode: 2},
	206: {Name: "Petkit_W5", Alias: "W5", ProductName: "Eversweet Mini", DeviceType: 14, TypeCode: 1},
	213: {Name: "Petkit_W5N", Alias: "W5N", ProductName: "Eversweet Mini", DeviceType: 14, TypeCode: 3},
	214: {Name: "Petkit_W4X", Alias: "W4X", ProductName: "Eversweet 3 Pro", DeviceType: 14, TypeCode: 4},
	217: {Name: "Petkit_CTW2", Alias: "CTW2", ProductName: "Eversweet Solo 2", DeviceType: 14, TypeCode: 5},
	228: {Name: "Petkit_W4XUVC", Alias: "W4X", ProductName: "Eversweet 3 Pro (UVC)", DeviceType: 14, TypeCode: 6},
}

// LookupVariant returns the properties for a hardware identifier byte.
func LookupVariant(id byte) (Variant, error) {
	v, ok := variants[id]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %d", ErrUnknownVariant, id)
	}
	return v, nil
}

// variantOffset is the position of the identifier byte in the concatenated
// advertisement service data.
const variantOffset = 5

// VariantFromServiceData extracts the identifier byte from advertisement
// service data and looks it up.
func VariantFromServiceData(serviceData []byte) (Variant, error) {
	if len(serviceData) <= variantOffset {
		return Variant{}, fmt.Errorf("%w: service data has %d bytes", ErrUnknownVariant, len(serviceData))
	}
	return LookupVariant(serviceData[variantOffset])
}

// namePrefixes are the advertised local-name fragments of supported fountains.
var namePrefixes = []string{"W4", "W5", "CTW2"}

// IsFountainName reports whether an advertised name belongs to a supported fountain.
func IsFountainName(name string) bool {
	for _, p := range namePrefixes {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
