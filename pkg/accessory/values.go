package accessory

import "fmt"

// Int coerces a characteristic value to an int. JSON numbers arrive
// as float64; only integral values convert.
func Int(v Value) (int, error) {
	switch n := v.(type) {
	case float64:
		i := int(n)
		if float64(i) != n {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrValueType, n)
		}
		return i, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrValueType, v)
	}
}

// Bool coerces a characteristic value to a bool. Accessories report
// boolean characteristics as true/false or as 0/1.
func Bool(v Value) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("%w: %v is not a boolean", ErrValueType, b)
	case int:
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("%w: %v is not a boolean", ErrValueType, b)
	default:
		return false, fmt.Errorf("%w: %T", ErrValueType, v)
	}
}

// Float coerces a characteristic value to a float64.
func Float(v Value) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrValueType, v)
	}
}
