package assessment

import (
	"encoding/json"
	"strconv"
)

// LabValue is a decimal lab measurement. It normally carries a number, but
// after a failed at-rest decryption the stored string cannot be coerced back
// to a number; in that case Raw holds the string the storage layer returned
// and the JSON form is that string rather than null.
type LabValue struct {
	Value float64
	Raw   string
}

func Lab(v float64) *LabValue {
	return &LabValue{Value: v}
}

func (v LabValue) MarshalJSON() ([]byte, error) {
	if v.Raw != "" {
		return json.Marshal(v.Raw)
	}

	return json.Marshal(v.Value)
}

func (v *LabValue) UnmarshalJSON(b []byte) error {
	var f float64

	if err := json.Unmarshal(b, &f); err == nil {
		*v = LabValue{Value: f}
		return nil
	}

	var s string

	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*v = LabValue{Value: f}
		return nil
	}

	*v = LabValue{Raw: s}
	return nil
}

// String renders the numeric value with no trailing zeros, the form that
// gets encrypted at the storage boundary.
func (v LabValue) String() string {
	if v.Raw != "" {
		return v.Raw
	}

	return strconv.FormatFloat(v.Value, 'f', -1, 64)
}
