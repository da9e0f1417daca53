package accessory

// NewSpeakerDatabase builds a minimal speaker attribute database: one
// accessory carrying an accessory-information service and a speaker
// service with mute and volume characteristics. Used by the in-repo
// accessory emulation and the examples.
func NewSpeakerDatabase(name string, volume int, mute bool) *Database {
	return &Database{
		Accessories: []Accessory{{
			AID: 1,
			Services: []Service{
				{
					Type: FullType(TypeAccessoryInformation),
					IID:  1,
					Characteristics: []Characteristic{
						{IID: 2, Type: FullType(TypeName), Description: "Name", Value: name, Format: "string", Perms: []string{"pr"}},
						{IID: 3, Type: FullType(TypeManufacturer), Description: "Manufacturer", Value: "cliairplay", Format: "string", Perms: []string{"pr"}},
						{IID: 4, Type: FullType(TypeModel), Description: "Model", Value: "Emulated Speaker", Format: "string", Perms: []string{"pr"}},
						{IID: 5, Type: FullType(TypeSerialNumber), Description: "Serial Number", Value: "0000001", Format: "string", Perms: []string{"pr"}},
						{IID: 6, Type: FullType(TypeFirmwareRevision), Description: "Firmware Revision", Value: "1.0.0", Format: "string", Perms: []string{"pr"}},
					},
				},
				{
					Type: FullType(TypeSpeaker),
					IID:  8,
					Characteristics: []Characteristic{
						{IID: 9, Type: FullType(TypeMute), Description: "Mute", Value: mute, Format: "bool", Perms: []string{"pr", "pw", "ev"}},
						{IID: 10, Type: FullType(TypeVolume), Description: "Volume", Value: volume, Format: "uint8", Perms: []string{"pr", "pw", "ev"}},
					},
				},
			},
		}},
	}
}
