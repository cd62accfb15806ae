// Package elementpack reads thick-mirror element descriptions.
//
// A description is a JSON5 document, so it may carry comments and trailing
// commas:
//
//	{
//	  kind: "toroid",        // or "ellipsoid", "plane"
//	  tangential_length: 0.5,
//	  sagittal_length: 0.02,
//	  aperture: "r",         // "r" rectangular, "e" elliptical
//	  normal: [0, 0.9999, -0.01],
//	  tangent: [0, 1],
//	  method: 1,
//	  rad_tan: 5000, rad_sag: 0.1,
//	}
package elementpack

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/KevinWang15/go-json5"

	"row-major/thickmirror/mirror"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/reflectivity"
	"row-major/thickmirror/surface"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
)

type ElementSpec struct {
	Kind string `json:"kind"`

	// Full aperture lengths along the tangent and the sagittal direction.
	TangentialLength float64 `json:"tangential_length"`
	SagittalLength   float64 `json:"sagittal_length"`
	Aperture         string  `json:"aperture"`

	Normal  [3]float64 `json:"normal"`
	Tangent [2]float64 `json:"tangent"`
	Center  [2]float64 `json:"center"`

	Method     int     `json:"method"`
	NPT        int     `json:"npt"`
	NPS        int     `json:"nps"`
	TreatInOut int     `json:"treat_in_out"`
	ExtIn      float64 `json:"ext_in"`
	ExtOut     float64 `json:"ext_out"`

	// Toroid.
	RadTan float64 `json:"rad_tan"`
	RadSag float64 `json:"rad_sag"`

	// Ellipsoid; RadSag is shared with the toroid.
	P         float64 `json:"p"`
	Q         float64 `json:"q"`
	GrazAngle float64 `json:"graz_angle"`

	// Optional .rtb file.  Relative paths are resolved against the
	// directory of the description.
	ReflectivityTable string `json:"reflectivity_table"`

	dir string
}

func Parse(data []byte) (*ElementSpec, error) {
	spec := &ElementSpec{}
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("while parsing element description: %w", err)
	}
	return spec, nil
}

func Load(name string) (*ElementSpec, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("while reading element description: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("in %s: %w", name, err)
	}
	spec.dir = filepath.Dir(name)
	return spec, nil
}

func (s *ElementSpec) apertureShape() (surface.ApertureShape, error) {
	switch s.Aperture {
	case "", "r":
		return surface.Rectangular, nil
	case "e":
		return surface.Elliptical, nil
	}
	return 0, opterr.Newf(opterr.InvalidParameter, "unknown aperture shape %q", s.Aperture)
}

// Surface builds the element's surface.
func (s *ElementSpec) Surface() (surface.Surface, error) {
	shape, err := s.apertureShape()
	if err != nil {
		return nil, err
	}
	apt, err := surface.NewAperture(s.TangentialLength/2, s.SagittalLength/2, shape)
	if err != nil {
		return nil, err
	}

	switch s.Kind {
	case "toroid":
		t, err := surface.NewToroid(s.RadTan, s.RadSag, apt)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "ellipsoid":
		e, err := surface.NewEllipsoid(s.P, s.Q, s.GrazAngle, s.RadSag, apt)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "plane":
		return surface.NewPlanar(apt), nil
	}
	return nil, opterr.Newf(opterr.InvalidParameter, "unknown surface kind %q", s.Kind)
}

func (s *ElementSpec) Params() mirror.Params {
	return mirror.Params{
		Normal:            vec3.T(s.Normal),
		Tangent:           vec2.T(s.Tangent),
		Center:            vec2.T(s.Center),
		Method:            mirror.Method(s.Method),
		NPointsTangential: s.NPT,
		NPointsSagittal:   s.NPS,
		TreatInOut:        mirror.TreatInOut(s.TreatInOut),
		ExtIn:             s.ExtIn,
		ExtOut:            s.ExtOut,
	}
}

// Build constructs the element.
func (s *ElementSpec) Build() (*mirror.Element, error) {
	if s.Method < 0 || s.Method > 255 || s.TreatInOut < 0 || s.TreatInOut > 255 {
		return nil, opterr.Newf(opterr.InvalidParameter, "method %d or in/out treatment %d out of range", s.Method, s.TreatInOut)
	}

	surf, err := s.Surface()
	if err != nil {
		return nil, fmt.Errorf("while building %s surface: %w", s.Kind, err)
	}
	e, err := mirror.New(s.Params(), surf)
	if err != nil {
		return nil, fmt.Errorf("while building %s element: %w", s.Kind, err)
	}
	return e, nil
}

// Table loads the reflectivity table, or returns nil when none is named.
func (s *ElementSpec) Table() (*reflectivity.Table, error) {
	if s.ReflectivityTable == "" {
		return nil, nil
	}
	name := s.ReflectivityTable
	if !filepath.IsAbs(name) && s.dir != "" {
		name = filepath.Join(s.dir, name)
	}
	t, err := reflectivity.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("while loading reflectivity table: %w", err)
	}
	return t, nil
}
