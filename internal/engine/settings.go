package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Region marks a span of audio, in seconds, targeted for inpainting.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Settings is the immutable parameter snapshot attached to a job at
// submission. Unknown fields are ignored so older jobs replay cleanly
// after settings grow new knobs.
type Settings struct {
	Denoise          bool     `json:"denoise,omitempty"`
	Declip           bool     `json:"declip,omitempty"`
	StereoEnhance    bool     `json:"stereo_enhance,omitempty"`
	RemoveBackground bool     `json:"remove_background,omitempty"`
	Normalize        bool     `json:"normalize,omitempty"`
	Regions          []Region `json:"regions,omitempty"`
	Format           string   `json:"format,omitempty"`
}

// ParseSettings decodes a settings snapshot from its stored JSON form.
func ParseSettings(raw string) (Settings, error) {
	var s Settings
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Encode serializes settings to the canonical stored form.
func (s Settings) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return string(data), nil
}

// InvalidRegionError reports an inpaint region that is out of bounds,
// inverted, or overlapping a neighbor.
type InvalidRegionError struct {
	Region Region
	Reason string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("invalid region [%g, %g): %s", e.Region.Start, e.Region.End, e.Reason)
}

// UnsupportedFormatError reports an unknown export format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// ValidateRegions checks bounds and overlap against the buffer duration.
// Regions are returned sorted by start time.
func ValidateRegions(regions []Region, duration float64) ([]Region, error) {
	if len(regions) == 0 {
		return nil, &InvalidRegionError{Reason: "no regions supplied"}
	}
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, region := range sorted {
		if region.Start < 0 {
			return nil, &InvalidRegionError{Region: region, Reason: "start before zero"}
		}
		if region.End <= region.Start {
			return nil, &InvalidRegionError{Region: region, Reason: "end not after start"}
		}
		if region.End > duration {
			return nil, &InvalidRegionError{Region: region, Reason: fmt.Sprintf("end beyond duration %g", duration)}
		}
		if i > 0 && region.Start < sorted[i-1].End {
			return nil, &InvalidRegionError{Region: region, Reason: "overlaps previous region"}
		}
	}
	return sorted, nil
}
