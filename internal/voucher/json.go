package voucher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ViewVersion is the layout version written by Marshal.
const ViewVersion = 1

// ErrUnsupportedVersion is returned by Unmarshal for views written by an
// unknown layout.
var ErrUnsupportedVersion = errors.New("unsupported voucher view version")

// View returns the structured form of v as a JSON-ready map.
func (v Voucher) View() map[string]any {
	return map[string]any{
		"number":   v.Number,
		"redeemed": v.Redeemed,
		"version":  ViewVersion,
	}
}

// Marshal serializes v as canonical JSON.
func (v Voucher) Marshal() ([]byte, error) {
	data, err := marshalCanonical(v.View())
	if err != nil {
		return nil, fmt.Errorf("marshal voucher: %w", err)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler using the canonical form.
func (v Voucher) MarshalJSON() ([]byte, error) {
	return v.Marshal()
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Voucher) UnmarshalJSON(data []byte) error {
	parsed, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Unmarshal parses a serialized voucher view, dispatching on its version.
func Unmarshal(data []byte) (Voucher, error) {
	var header struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Voucher{}, fmt.Errorf("unmarshal voucher: %w", err)
	}
	if header.Version == nil {
		return Voucher{}, fmt.Errorf("unmarshal voucher: missing version")
	}

	switch *header.Version {
	case 1:
		return unmarshalV1(data)
	default:
		return Voucher{}, fmt.Errorf("unmarshal voucher: %w: %d", ErrUnsupportedVersion, *header.Version)
	}
}

func unmarshalV1(data []byte) (Voucher, error) {
	var view struct {
		Version  int     `json:"version"`
		Number   *string `json:"number"`
		Redeemed bool    `json:"redeemed"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&view); err != nil {
		return Voucher{}, fmt.Errorf("unmarshal voucher v1: %w", err)
	}
	if view.Number == nil {
		return Voucher{}, fmt.Errorf("unmarshal voucher v1: missing number")
	}
	return Voucher{Number: *view.Number, Redeemed: view.Redeemed}, nil
}
