package images

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrResolution is returned when a resolution string cannot be parsed.
var ErrResolution = errors.New("unknown resolution")

// ResolutionAlias is the short name of a common camera or detector resolution.
type ResolutionAlias string

// Supported aliases.
const (
	ResolutionAliasNHD   ResolutionAlias = "nhd"
	ResolutionAlias480p  ResolutionAlias = "480p"
	ResolutionAlias540p  ResolutionAlias = "540p"
	ResolutionAlias640   ResolutionAlias = "640"
	ResolutionAlias720p  ResolutionAlias = "720p"
	ResolutionAliasWXGA  ResolutionAlias = "wxga"
	ResolutionAlias1MP   ResolutionAlias = "1mp"
	ResolutionAlias1080p ResolutionAlias = "1080p"
	ResolutionAlias1440p ResolutionAlias = "1440p"
	ResolutionAlias4K    ResolutionAlias = "4k"
)

// Resolution is a named output size.
type Resolution struct {
	Alias  ResolutionAlias `json:"alias" yaml:"alias"`
	Name   string          `json:"name" yaml:"name"`
	Width  int             `json:"width" yaml:"width"`
	Height int             `json:"height" yaml:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	mp := float64(r.Width*r.Height) / 1_000_000
	return math.Round(mp*100) / 100
}

// String implements fmt.Stringer.
func (r Resolution) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%dx%d", r.Width, r.Height)
	}
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// Resolutions lists the presets in ascending pixel count.
var Resolutions = []Resolution{
	{Alias: ResolutionAliasNHD, Name: "nHD", Width: 640, Height: 360},
	{Alias: ResolutionAlias640, Name: "Detector 640", Width: 640, Height: 640},
	{Alias: ResolutionAlias480p, Name: "FWVGA", Width: 854, Height: 480},
	{Alias: ResolutionAlias540p, Name: "qHD 540p", Width: 960, Height: 540},
	{Alias: ResolutionAlias720p, Name: "HD 720p", Width: 1280, Height: 720},
	{Alias: ResolutionAliasWXGA, Name: "WXGA", Width: 1366, Height: 768},
	{Alias: ResolutionAlias1MP, Name: "1MP (5:4)", Width: 1280, Height: 1024},
	{Alias: ResolutionAlias1080p, Name: "Full HD 1080p", Width: 1920, Height: 1080},
	{Alias: ResolutionAlias1440p, Name: "QHD 1440p", Width: 2560, Height: 1440},
	{Alias: ResolutionAlias4K, Name: "4K UHD", Width: 3840, Height: 2160},
}

// LookupResolution returns the preset for alias.
func LookupResolution(alias ResolutionAlias) (Resolution, bool) {
	for _, r := range Resolutions {
		if r.Alias == alias {
			return r, true
		}
	}
	return Resolution{}, false
}

// ParseResolution accepts a preset alias ("720p", case-insensitive) or explicit
// dimensions ("1280x720").
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if r, ok := LookupResolution(ResolutionAlias(s)); ok {
		return r, nil
	}
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return Resolution{}, errors.Wrapf(ErrResolution, "%q", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Resolution{}, errors.Wrapf(ErrResolution, "%q: want WIDTHxHEIGHT with positive sizes", s)
	}
	return Resolution{Width: w, Height: h}, nil
}

// LargestWithin returns the preset with the most pixels that fits inside
// width x height.
//
// Arguments:
//   - width: The maximum width.
//   - height: The maximum height.
//
// Returns:
//   - Resolution: The largest fitting preset.
//   - bool: False when no preset fits.
func LargestWithin(width, height int) (Resolution, bool) {
	var best Resolution
	found := false
	for _, r := range Resolutions {
		if r.Width > width || r.Height > height {
			continue
		}
		if !found || r.Width*r.Height > best.Width*best.Height {
			best, found = r, true
		}
	}
	return best, found
}
