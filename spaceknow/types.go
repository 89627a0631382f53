package spaceknow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Pipeline statuses
const (
	StatusNew        = "NEW"
	StatusProcessing = "PROCESSING"
	StatusFailed     = "FAILED"
	StatusResolved   = "RESOLVED"
)

// Map types of a kraken release
const (
	MapTypeCars    = "cars"
	MapTypeImagery = "imagery"
)

// Files of a kraken grid tile
const (
	FileDetections = "detections.geojson"
	FileTruecolor  = "truecolor.png"
)

type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthToken struct {
	IDToken     string `json:"id_token" validate:"required"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Pipeline is an asynchronous task on the API side
type Pipeline struct {
	ID      string `json:"pipelineId" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=NEW PROCESSING FAILED RESOLVED"`
	NextTry int    `json:"nextTry" validate:"gte=0"`
}

type PipelineStatus struct {
	Status  string `json:"status" validate:"required,oneof=NEW PROCESSING FAILED RESOLVED"`
	NextTry int    `json:"nextTry" validate:"gte=0"`
}

// SearchRequest starts an imagery search over an extent
type SearchRequest struct {
	Provider         string          `json:"provider" validate:"required,oneof=gbdx maxar pl iceye ee esa noaa"`
	Dataset          string          `json:"dataset" validate:"required"`
	Extent           json.RawMessage `json:"extent" validate:"required"`
	StartDatetime    string          `json:"startDatetime,omitempty"`
	EndDatetime      string          `json:"endDatetime,omitempty"`
	MinIntersection  float64         `json:"minIntersection" validate:"gte=0,lte=1"`
	OnlyDownloadable bool            `json:"onlyDownloadable"`
	OnlyIngested     bool            `json:"onlyIngested"`
}

// Scene is the metadata of one found image. Fields the API adds beyond these are kept in Metadata.
type Scene struct {
	SceneID    string   `json:"sceneId" validate:"required"`
	Datetime   string   `json:"datetime"`
	Satellite  string   `json:"satellite"`
	Provider   string   `json:"provider"`
	Dataset    string   `json:"dataset"`
	CloudCover *float64 `json:"cloudCover,omitempty"`

	Metadata map[string]interface{} `json:"-"`
}

func (s *Scene) UnmarshalJSON(data []byte) error {
	err := defaults.Set(s)
	if err != nil {
		return err
	}
	s.Metadata, err = marshmallow.Unmarshal(data, s, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	return validate.Struct(s)
}

// Title describes the scene on one line
func (s Scene) Title() string {
	cloudy := "N/A"
	if s.CloudCover != nil {
		cloudy = strconv.FormatFloat(*s.CloudCover, 'f', -1, 64)
	}
	return fmt.Sprintf("%s, %s.%s, cloudy: %s", s.Datetime, s.Provider, s.Dataset, cloudy)
}

type searchResults struct {
	Results []Scene `json:"results"`
	Cursor  *string `json:"cursor"`
}

type AllocatedArea struct {
	Km2  float64 `json:"km2" validate:"gte=0"`
	Cost float64 `json:"cost" validate:"gte=0"`
}

// KrakenResult lists the tiles of a finished kraken release
type KrakenResult struct {
	MapID   string  `json:"mapId" validate:"required"`
	MaxZoom uint    `json:"maxZoom"`
	Tiles   [][]int `json:"tiles" validate:"dive,len=3"`
}
