package accessory

import "strings"

// Predicate selects characteristics during database searches.
type Predicate func(c Characteristic) bool

// ByType matches characteristics whose normalized type equals the
// normalized id. Works with both short and full UUID forms.
func ByType(id string) Predicate {
	want := NormalizeType(id)
	return func(c Characteristic) bool {
		return NormalizeType(c.Type) == want
	}
}

// VolumeHeuristic matches the volume characteristic loosely: a type
// containing "119", else a description containing "volume". This is a
// fallback for accessories whose database carries unexpected type
// forms; prefer ByType(TypeVolume) and use the heuristic only when
// that finds nothing.
//
// TODO: confirm the description arm against real AirPlay 2 speaker
// databases; substring matching can pick up unrelated characteristics
// such as "Volume Control Type".
func VolumeHeuristic(c Characteristic) bool {
	if strings.Contains(strings.ToUpper(c.Type), "119") {
		return true
	}
	return strings.Contains(strings.ToLower(c.Description), "volume")
}

// MuteHeuristic is the companion fallback for the mute
// characteristic: a type containing "11A", else a description
// containing "mute".
func MuteHeuristic(c Characteristic) bool {
	if strings.Contains(strings.ToUpper(c.Type), "11A") {
		return true
	}
	return strings.Contains(strings.ToLower(c.Description), "mute")
}

// FindFirst returns the first characteristic in document order
// matching pred, together with the ID of the accessory holding it.
// The returned pointer aliases the database.
func FindFirst(db *Database, pred Predicate) (*Characteristic, uint64, error) {
	for i := range db.Accessories {
		acc := &db.Accessories[i]
		for j := range acc.Services {
			svc := &acc.Services[j]
			for k := range svc.Characteristics {
				if pred(svc.Characteristics[k]) {
					return &svc.Characteristics[k], acc.AID, nil
				}
			}
		}
	}
	return nil, 0, ErrNoMatch
}
