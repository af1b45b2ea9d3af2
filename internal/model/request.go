package model

import "strconv"

// Request defaults, the same for the body and the path forms.
const (
	DefaultLocation     = "London,UK"
	DefaultStyle        = "minimal"
	DefaultZoom         = 11
	DefaultWidth        = 1200
	DefaultHeight       = 800
	DefaultOutputFormat = "png"
)

// PosterRequest is the inbound shape of a generation request. Every field is
// optional, nil means "use the default".
type PosterRequest struct {
	Location     *string `json:"location,omitempty"`
	Country      *string `json:"country,omitempty"`
	Style        *string `json:"style,omitempty"`
	Zoom         *int    `json:"zoom,omitempty"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	OutputFormat *string `json:"output_format,omitempty"`
}

// GenerationRequest is a fully resolved request. It is passed by value and
// never modified once built.
type GenerationRequest struct {
	Location     string `json:"location"`
	Country      string `json:"country"`
	Style        string `json:"style"`
	Zoom         int    `json:"zoom"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	OutputFormat string `json:"output_format"`
}

// Resolve fills every missing field with its default.
func (p PosterRequest) Resolve() GenerationRequest {
	return GenerationRequest{
		Location:     or(p.Location, DefaultLocation),
		Country:      or(p.Country, ""),
		Style:        or(p.Style, DefaultStyle),
		Zoom:         or(p.Zoom, DefaultZoom),
		Width:        or(p.Width, DefaultWidth),
		Height:       or(p.Height, DefaultHeight),
		OutputFormat: or(p.OutputFormat, DefaultOutputFormat),
	}
}

// DefaultRequest is the request produced by an empty payload.
func DefaultRequest() GenerationRequest {
	return PosterRequest{}.Resolve()
}

// ZoomArg, WidthArg and HeightArg format the numeric fields for an argument
// vector.
func (r GenerationRequest) ZoomArg() string   { return strconv.Itoa(r.Zoom) }
func (r GenerationRequest) WidthArg() string  { return strconv.Itoa(r.Width) }
func (r GenerationRequest) HeightArg() string { return strconv.Itoa(r.Height) }

func or[T any](pt *T, dflt T) T {
	if pt == nil {
		return dflt
	}
	return *pt
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
