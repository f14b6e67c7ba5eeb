package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidParams = errors.New("trigger: invalid params")

// Params is a blur parameter change requested by a trigger source.
type Params struct {
	Radius        float64 `json:"radius"`
	CompressScale float64 `json:"compress_scale"`
}

// Applier receives parameter changes, *view.BlurView implements it.
type Applier interface {
	SetBlurAndCompress(radius, scale float64)
}

// Handler return a callback which applies params to a.
func Handler(a Applier) func(Params) {
	return func(p Params) {
		a.SetBlurAndCompress(p.Radius, p.CompressScale)
	}
}

func (p Params) Validate() error {
	for name, value := range map[string]float64{"radius": p.Radius, "compress_scale": p.CompressScale} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidParams, name, value)
		}
	}
	return nil
}

// Decode parse a JSON trigger payload, both fields are required.
func Decode(data []byte) (Params, error) {
	var raw struct {
		Radius        *float64 `json:"radius"`
		CompressScale *float64 `json:"compress_scale"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if raw.Radius == nil || raw.CompressScale == nil {
		return Params{}, fmt.Errorf("%w: radius and compress_scale are required", ErrInvalidParams)
	}
	return Params{Radius: *raw.Radius, CompressScale: *raw.CompressScale}, nil
}

func (p Params) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// FromStruct read params from a protobuf Struct message.
func FromStruct(s *structpb.Struct) (Params, error) {
	fields := s.GetFields()
	radius, ok := fields["radius"]
	if !ok {
		return Params{}, fmt.Errorf("%w: radius is required", ErrInvalidParams)
	}
	scale, ok := fields["compress_scale"]
	if !ok {
		return Params{}, fmt.Errorf("%w: compress_scale is required", ErrInvalidParams)
	}
	if _, ok := radius.GetKind().(*structpb.Value_NumberValue); !ok {
		return Params{}, fmt.Errorf("%w: radius is not a number", ErrInvalidParams)
	}
	if _, ok := scale.GetKind().(*structpb.Value_NumberValue); !ok {
		return Params{}, fmt.Errorf("%w: compress_scale is not a number", ErrInvalidParams)
	}

	p := Params{Radius: radius.GetNumberValue(), CompressScale: scale.GetNumberValue()}
	return p, p.Validate()
}

// Struct convert params to a protobuf Struct message.
func (p Params) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"radius":         p.Radius,
		"compress_scale": p.CompressScale,
	})
}
