package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidBoundingBox is returned when a bounding box value cannot be parsed.
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// LatLng represents a geographic coordinate (WGS 84).
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Equal compares two points by value. NaN equals NaN.
func (p LatLng) Equal(o LatLng) bool {
	return sameFloat(p.Lat, o.Lat) && sameFloat(p.Lng, o.Lng)
}

// BoundingBox is a rectangular region given by its north-east and south-west corners.
// Corner ordering is not validated.
type BoundingBox struct {
	NorthEast LatLng `json:"northEast"`
	SouthWest LatLng `json:"southWest"`
}

// String serializes the box as "neLat,neLng,swLat,swLng".
func (b BoundingBox) String() string {
	parts := []string{
		formatCoord(b.NorthEast.Lat),
		formatCoord(b.NorthEast.Lng),
		formatCoord(b.SouthWest.Lat),
		formatCoord(b.SouthWest.Lng),
	}
	return strings.Join(parts, ",")
}

// Equal compares two boxes by value.
func (b BoundingBox) Equal(o BoundingBox) bool {
	return b.NorthEast.Equal(o.NorthEast) && b.SouthWest.Equal(o.SouthWest)
}

// Array returns the box as [neLat, neLng, swLat, swLng].
func (b BoundingBox) Array() []float64 {
	return []float64{b.NorthEast.Lat, b.NorthEast.Lng, b.SouthWest.Lat, b.SouthWest.Lng}
}

// ParseBoundingBox parses the "neLat,neLng,swLat,swLng" form.
func ParseBoundingBox(s string) (BoundingBox, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: expected 4 values, got %d", ErrInvalidBoundingBox, len(fields))
	}

	values := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("%w: %q is not a number", ErrInvalidBoundingBox, f)
		}
		values[i] = v
	}
	return boundingBoxFromValues(values), nil
}

// BoundingBoxFromArray reads the legacy nested form [[neLat,neLng,swLat,swLng], ...].
// Only the first box is used.
func BoundingBoxFromArray(boxes [][]float64) (BoundingBox, error) {
	if len(boxes) == 0 {
		return BoundingBox{}, fmt.Errorf("%w: empty array", ErrInvalidBoundingBox)
	}
	if len(boxes[0]) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: expected 4 values, got %d", ErrInvalidBoundingBox, len(boxes[0]))
	}
	return boundingBoxFromValues(boxes[0]), nil
}

func boundingBoxFromValues(v []float64) BoundingBox {
	return BoundingBox{
		NorthEast: LatLng{Lat: v[0], Lng: v[1]},
		SouthWest: LatLng{Lat: v[2], Lng: v[3]},
	}
}

// BoundingBoxParam is the raw insideBoundingBox search parameter.
// Exactly one of Text or Boxes is meaningful: Text wins when non-empty.
type BoundingBoxParam struct {
	Text  string
	Boxes [][]float64
}

// BoundingBoxText wraps a serialized box as a search parameter.
func BoundingBoxText(s string) *BoundingBoxParam {
	return &BoundingBoxParam{Text: s}
}

// Resolve returns the first box held by the parameter, or nil when the
// parameter is absent or malformed.
func (p *BoundingBoxParam) Resolve() *BoundingBox {
	if p == nil {
		return nil
	}
	var (
		b   BoundingBox
		err error
	)
	if p.Text != "" {
		b, err = ParseBoundingBox(p.Text)
	} else {
		b, err = BoundingBoxFromArray(p.Boxes)
	}
	if err != nil {
		return nil
	}
	return &b
}

// All returns every box held by the parameter. Malformed entries are skipped.
func (p *BoundingBoxParam) All() []BoundingBox {
	if p == nil {
		return nil
	}
	if p.Text != "" {
		b, err := ParseBoundingBox(p.Text)
		if err != nil {
			return nil
		}
		return []BoundingBox{b}
	}
	var out []BoundingBox
	for _, box := range p.Boxes {
		if len(box) == 4 {
			out = append(out, boundingBoxFromValues(box))
		}
	}
	return out
}

// MarshalJSON writes the form the parameter holds.
func (p BoundingBoxParam) MarshalJSON() ([]byte, error) {
	if p.Text != "" {
		return json.Marshal(p.Text)
	}
	return json.Marshal(p.Boxes)
}

// UnmarshalJSON accepts either a string or a nested numeric array.
func (p *BoundingBoxParam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		p.Boxes = nil
		return json.Unmarshal(data, &p.Text)
	}
	p.Text = ""
	return json.Unmarshal(data, &p.Boxes)
}

// ParseAroundLatLng parses the "lat, lng" form of the aroundLatLng parameter.
func ParseAroundLatLng(s string) (*LatLng, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2 {
		return nil, fmt.Errorf("invalid aroundLatLng %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid aroundLatLng latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid aroundLatLng longitude: %w", err)
	}
	return &LatLng{Lat: lat, Lng: lng}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
