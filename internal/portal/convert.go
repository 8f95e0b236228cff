package portal

import (
	"reflect"

	"github.com/godbus/dbus/v5"
)

var stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))

func FromString(input string) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, stringSignature)
}
