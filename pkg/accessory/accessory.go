// Package accessory models the accessory attribute database: the JSON
// document an accessory serves on GET /accessories describing its
// services and characteristics, and the payloads exchanged on the
// /characteristics endpoint.
//
// See HomeKit Accessory Protocol Specification, chapter 6.
package accessory

// Value is a characteristic value as carried in JSON. Numbers decode
// as float64, booleans as bool; use the coercion helpers to recover
// typed values.
type Value = any

// Database is the top-level attribute database document.
type Database struct {
	Accessories []Accessory `json:"accessories"`
}

// Accessory is one accessory in the database.
type Accessory struct {
	AID      uint64    `json:"aid"`
	Services []Service `json:"services"`
}

// Service groups characteristics under a service type.
type Service struct {
	Type            string           `json:"type"`
	IID             uint64           `json:"iid"`
	Characteristics []Characteristic `json:"characteristics"`
}

// Characteristic is one controllable value in a service. AID is set
// in /characteristics payloads and absent in the database document,
// where the accessory ID comes from the enclosing accessory.
type Characteristic struct {
	AID         uint64   `json:"aid,omitempty"`
	IID         uint64   `json:"iid"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Value       Value    `json:"value,omitempty"`
	Format      string   `json:"format,omitempty"`
	Perms       []string `json:"perms,omitempty"`
}

// Lookup returns the characteristic with the given accessory and
// instance ID, or nil if not found. The returned pointer aliases the
// database, so assignments through it update the document.
func (db *Database) Lookup(aid, iid uint64) *Characteristic {
	for i := range db.Accessories {
		acc := &db.Accessories[i]
		if acc.AID != aid {
			continue
		}
		for j := range acc.Services {
			svc := &acc.Services[j]
			for k := range svc.Characteristics {
				if svc.Characteristics[k].IID == iid {
					return &svc.Characteristics[k]
				}
			}
		}
	}
	return nil
}
