// Package config holds the settings of an analysis run.
package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"log"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/mapslicehelp"
	"github.com/pdok/skmosaic/spaceknow"
	"github.com/perimeterx/marshmallow"
	"golang.org/x/image/colornames"
)

// Settings is read from a JSON file; absent keys get their default.
type Settings struct {
	API         API    `json:"api"`
	Search      Search `json:"search"`
	Render      Render `json:"render"`
	Export      Export `json:"export"`
	Parallelism int    `json:"parallelism" default:"4" validate:"gte=1,lte=64"`

	// Unknown holds top level keys that are not settings
	Unknown map[string]interface{} `json:"-"`
}

type API struct {
	AuthURL        string `json:"authUrl" default:"https://spaceknow.auth0.com" validate:"required,url"`
	BaseURL        string `json:"baseUrl" default:"https://api.spaceknow.com" validate:"required,url"`
	ClientID       string `json:"clientId"`
	TimeoutSeconds int    `json:"timeoutSeconds" default:"60" validate:"gte=1"`
}

type Search struct {
	Provider         string  `json:"provider" default:"gbdx" validate:"required,oneof=gbdx maxar pl iceye ee esa noaa"`
	Dataset          string  `json:"dataset" default:"idaho-pansharpened" validate:"required"`
	StartDatetime    string  `json:"startDatetime" default:"2018-01-01 00:00:00"`
	EndDatetime      string  `json:"endDatetime"`
	MinIntersection  float64 `json:"minIntersection" default:"0.5" validate:"gte=0,lte=1"`
	OnlyDownloadable bool    `json:"onlyDownloadable" default:"true"`
	OnlyIngested     bool    `json:"onlyIngested"`
}

type Render struct {
	// Color is a CSS colour name or a #rrggbb / #rrggbbaa hex value
	Color            string  `json:"color" default:"red" validate:"required"`
	LineWidth        float64 `json:"lineWidth" default:"2" validate:"gt=0"`
	MosaicZoomOffset uint    `json:"mosaicZoomOffset" default:"1" validate:"lte=8"`
	Format           string  `json:"format" default:"png" validate:"oneof=png jpg webp"`
	Quality          int     `json:"quality" default:"90" validate:"gte=1,lte=100"`
	// stitch the tiles outlined by PerTile instead of the raw imagery, ignored without PerTile
	EnhancedFirst    bool    `json:"enhancedFirst" default:"true"`
	PerTile          bool    `json:"perTile"`
}

type Export struct {
	Geopackage bool    `json:"geopackage" default:"true"`
	Pagesize   int     `json:"pagesize" default:"1000" validate:"gte=1"`
	// in degrees, polygons not larger than its square are not exported
	SieveResolution float64 `json:"sieveResolution" validate:"gte=0"`
}

// Default returns the settings used when no file is given
func Default() (Settings, error) {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		return s, err
	}
	return s, s.Validate()
}

// Load reads the settings file at path, or returns the defaults when path is empty.
func Load(path string) (Settings, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("could not read settings: %w", err)
	}
	var s Settings
	if err = json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	for _, key := range mapslicehelp.SortedKeys(s.Unknown) {
		log.Printf("warning: ignoring unknown setting %q in %s", key, path)
	}
	return s, nil
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	err := defaults.Set(s)
	if err != nil {
		return err
	}
	// sections are decoded in place so their defaults survive
	type plain Settings
	if err = json.Unmarshal(data, (*plain)(s)); err != nil {
		return err
	}
	s.Unknown, err = marshmallow.Unmarshal(data, &plain{}, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	return s.Validate()
}

func (s *Settings) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(s); err != nil {
		return err
	}
	_, err := ParseColor(s.Render.Color)
	return err
}

// Timeout of a single API request
func (a API) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Request builds the imagery search for extent
func (s Search) Request(extent json.RawMessage) spaceknow.SearchRequest {
	return spaceknow.SearchRequest{
		Provider:         s.Provider,
		Dataset:          s.Dataset,
		Extent:           extent,
		StartDatetime:    s.StartDatetime,
		EndDatetime:      s.EndDatetime,
		MinIntersection:  s.MinIntersection,
		OnlyDownloadable: s.OnlyDownloadable,
		OnlyIngested:     s.OnlyIngested,
	}
}

// Style returns the detection style of the mosaic
func (r Render) Style() (detect.Style, error) {
	c, err := ParseColor(r.Color)
	if err != nil {
		return detect.Style{}, err
	}
	return detect.Style{Color: c, LineWidth: r.LineWidth}, nil
}

// ParseColor accepts CSS colour names and #rgb, #rrggbb or #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if hex == s {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	c := color.RGBA{A: 255}
	var err error
	switch len(hex) {
	case 3:
		_, err = fmt.Sscanf(hex, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R, c.G, c.B = c.R*17, c.G*17, c.B*17
	case 6:
		_, err = fmt.Sscanf(hex, "%2x%2x%2x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(hex, "%2x%2x%2x%2x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("expected 3, 6 or 8 hex digits")
	}
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	if c.A < 255 {
		// color.RGBA is alpha-premultiplied
		c.R = uint8(uint16(c.R) * uint16(c.A) / 255)
		c.G = uint8(uint16(c.G) * uint16(c.A) / 255)
		c.B = uint8(uint16(c.B) * uint16(c.A) / 255)
	}
	return c, nil
}
