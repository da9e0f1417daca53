package pairing

import "errors"

// ErrInvalidSetupCode rejects setup codes that are not eight digits.
var ErrInvalidSetupCode = errors.New("pairing: setup code must be 8 digits (XXX-XX-XXX)")

// NormalizePIN canonicalizes a setup code to the dashed XXX-XX-XXX
// form. It accepts the dashed form and the bare 8-digit form; anything
// else is rejected.
func NormalizePIN(pin string) (string, error) {
	switch len(pin) {
	case 10:
		if pin[3] != '-' || pin[6] != '-' {
			return "", ErrInvalidSetupCode
		}
		if !isDigits(pin[:3]) || !isDigits(pin[4:6]) || !isDigits(pin[7:]) {
			return "", ErrInvalidSetupCode
		}
		return pin, nil
	case 8:
		if !isDigits(pin) {
			return "", ErrInvalidSetupCode
		}
		return pin[:3] + "-" + pin[3:5] + "-" + pin[5:], nil
	default:
		return "", ErrInvalidSetupCode
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
