package accessory

import "strings"

// appleBaseSuffix is the tail of Apple-defined type UUIDs. Short
// identifiers like "119" expand to
// "00000119-0000-1000-8000-0026BB765291".
const appleBaseSuffix = "-0000-1000-8000-0026BB765291"

// Apple-defined service types, short form.
// See HomeKit Accessory Protocol Specification, chapter 8.
const (
	TypeAccessoryInformation = "3E"
	TypeSpeaker              = "113"
)

// Apple-defined characteristic types, short form.
const (
	TypeName             = "23"
	TypeManufacturer     = "20"
	TypeModel            = "21"
	TypeSerialNumber     = "30"
	TypeFirmwareRevision = "52"
	TypeVolume           = "119"
	TypeMute             = "11A"
)

// NormalizeType reduces a type identifier to its canonical short
// form: uppercased, Apple base UUID suffix and leading zeros
// stripped. Accessories serve either form.
func NormalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	t = strings.TrimSuffix(t, appleBaseSuffix)
	t = strings.TrimLeft(t, "0")
	if t == "" {
		t = "0"
	}
	return t
}

// FullType expands a short Apple-defined identifier to the full UUID
// form.
func FullType(short string) string {
	short = strings.ToUpper(short)
	if len(short) < 8 {
		short = strings.Repeat("0", 8-len(short)) + short
	}
	return short + appleBaseSuffix
}
