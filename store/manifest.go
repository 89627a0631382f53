package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdok/skmosaic/tiles"
)

// Manifest records which tiles make up a scene result, so it can be composed again offline.
type Manifest struct {
	SceneID        string         `json:"sceneId"`
	Title          string         `json:"title,omitempty"`
	DetectionTiles [][]int        `json:"detectionTiles"`
	ImageryTiles   [][]int        `json:"imageryTiles"`
	MosaicZoom     uint           `json:"mosaicZoom"`
	Result         string         `json:"result,omitempty"`
	Counts         map[string]int `json:"counts,omitempty"`
}

func (m Manifest) Detections() ([]tiles.Address, error) {
	return tiles.FromTriples(m.DetectionTiles)
}

func (m Manifest) Imagery() ([]tiles.Address, error) {
	return tiles.FromTriples(m.ImageryTiles)
}

func (s *Scene) ManifestPath() string {
	return filepath.Join(s.dir, manifestFile)
}

func (s *Scene) SaveManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.ManifestPath(), data)
}

func (s *Scene) LoadManifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(s.ManifestPath())
	if err != nil {
		return m, notFound(err)
	}
	if err = json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid manifest %v: %w", s.ManifestPath(), err)
	}
	return m, nil
}
