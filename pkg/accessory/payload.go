package accessory

// WriteRequest is the body of PUT /characteristics.
type WriteRequest struct {
	Characteristics []WriteEntry `json:"characteristics"`
}

// WriteEntry addresses one characteristic write.
type WriteEntry struct {
	AID   uint64 `json:"aid"`
	IID   uint64 `json:"iid"`
	Value Value  `json:"value"`
}

// ReadResponse is the body of a GET /characteristics reply.
type ReadResponse struct {
	Characteristics []Characteristic `json:"characteristics"`
}

// WriteResponse reports per-entry status when the accessory could not
// apply every write outright (HTTP 207 Multi-Status).
type WriteResponse struct {
	Characteristics []StatusEntry `json:"characteristics"`
}

// StatusEntry carries the status code for one addressed
// characteristic.
type StatusEntry struct {
	AID    uint64 `json:"aid"`
	IID    uint64 `json:"iid"`
	Status int    `json:"status"`
}

// Status codes carried in characteristic operation responses.
// See HomeKit Accessory Protocol Specification, section 6.7.1.4.
const (
	StatusSuccess                 = 0
	StatusInsufficientPrivileges  = -70401
	StatusUnableToCommunicate     = -70402
	StatusBusy                    = -70403
	StatusReadOnly                = -70404
	StatusWriteOnly               = -70405
	StatusNotificationUnsupported = -70406
	StatusOutOfResources          = -70407
	StatusTimedOut                = -70408
	StatusUnknownResource         = -70409
	StatusInvalidValue            = -70410
	StatusInsufficientAuth        = -70411
)
