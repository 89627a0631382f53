// Package analysis runs a detection analysis over an area of interest: search imagery,
// launch the kraken analyses per scene, download their tiles and compose the results.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/pdok/skmosaic/config"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/spaceknow"
	"github.com/pdok/skmosaic/tiles"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// API is what the orchestrator needs from the SpaceKnow client
type API interface {
	SearchInitiate(ctx context.Context, request spaceknow.SearchRequest) (spaceknow.Pipeline, error)
	SearchRetrieve(ctx context.Context, pipelineID string) ([]spaceknow.Scene, error)
	WaitPipeline(ctx context.Context, pipeline spaceknow.Pipeline) error
	AllocateArea(ctx context.Context, sceneIDs []string, extent json.RawMessage) (spaceknow.AllocatedArea, error)
	ReleaseInitiate(ctx context.Context, mapType string, sceneIDs []string, extent json.RawMessage) (spaceknow.Pipeline, error)
	ReleaseRetrieve(ctx context.Context, pipelineID string) (spaceknow.KrakenResult, error)
	GridTile(ctx context.Context, mapID string, a tiles.Address, file string) ([]byte, error)
}

// Selector chooses the scenes to analyse from the found imagery
type Selector interface {
	Select(scenes []spaceknow.Scene) ([]spaceknow.Scene, error)
}

// SelectorFunc adapts a function to a Selector
type SelectorFunc func(scenes []spaceknow.Scene) ([]spaceknow.Scene, error)

func (f SelectorFunc) Select(scenes []spaceknow.Scene) ([]spaceknow.Scene, error) {
	return f(scenes)
}

// SelectAll selects every found scene
var SelectAll = SelectorFunc(func(scenes []spaceknow.Scene) ([]spaceknow.Scene, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	return scenes, nil
})

// SceneRun is the state of one scene in an analysis
type SceneRun struct {
	Scene   spaceknow.Scene
	Cars    spaceknow.Pipeline
	Imagery spaceknow.Pipeline
	Area    spaceknow.AllocatedArea

	// Err is set when the scene failed
	Err        error
	Counts     *detect.ClassCounts
	ResultPath string
}

func (r *SceneRun) Failed() bool {
	return r.Err != nil
}

// Orchestrator drives the stages of an analysis
type Orchestrator struct {
	api      API
	settings config.Settings
	style    detect.Style
	dir      string
	out      io.Writer

	runs            *orderedmap.OrderedMap[string, *SceneRun]
	pipelineToScene *orderedmap.OrderedMap[string, string]
}

// NewOrchestrator writes results below resultDir and user facing output to out.
func NewOrchestrator(api API, settings config.Settings, resultDir string, out io.Writer) (*Orchestrator, error) {
	style, err := settings.Render.Style()
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		api:             api,
		settings:        settings,
		style:           style,
		dir:             resultDir,
		out:             out,
		runs:            orderedmap.New[string, *SceneRun](),
		pipelineToScene: orderedmap.New[string, string](),
	}, nil
}

// Run executes all stages: search, select, launch, then processes every launched scene.
// A failing scene does not stop the others.
func (o *Orchestrator) Run(ctx context.Context, extent Extent, selector Selector) (Stats, error) {
	scenes, err := o.Search(ctx, extent)
	if err != nil {
		return Stats{}, err
	}
	selected, err := selector.Select(scenes)
	if err != nil {
		return Stats{}, err
	}
	runs, err := o.Launch(ctx, selected, extent)
	if err != nil {
		return Stats{}, err
	}
	for _, run := range runs {
		if err = o.ProcessScene(ctx, run); err != nil {
			if ctx.Err() != nil {
				return o.Stats(), err
			}
			run.Err = err
			log.Printf("scene %s failed: %v", run.Scene.SceneID, err)
		}
	}
	return o.Stats(), nil
}

// Search finds the imagery of the extent
func (o *Orchestrator) Search(ctx context.Context, extent Extent) ([]spaceknow.Scene, error) {
	log.Println("=== searching imagery in the selected area ===")
	pipeline, err := o.api.SearchInitiate(ctx, o.settings.Search.Request(extent.GeoJSON))
	if err != nil {
		return nil, fmt.Errorf("could not start imagery search: %w", err)
	}
	log.Printf("  pipeline id: %s", pipeline.ID)
	if err = o.api.WaitPipeline(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("imagery search did not finish: %w", err)
	}
	log.Println("=== retrieving found imagery ===")
	scenes, err := o.api.SearchRetrieve(ctx, pipeline.ID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve imagery: %w", err)
	}
	log.Printf("  found %d scene(s)", len(scenes))
	return scenes, nil
}

// Launch allocates the area and starts the cars and imagery analyses of every scene.
func (o *Orchestrator) Launch(ctx context.Context, scenes []spaceknow.Scene, extent Extent) ([]*SceneRun, error) {
	runs := make([]*SceneRun, 0, len(scenes))
	for _, scene := range scenes {
		if _, exists := o.runs.Get(scene.SceneID); exists {
			continue
		}
		run := &SceneRun{Scene: scene}
		ids := []string{scene.SceneID}

		log.Printf("=== allocating area for scene %s ===", scene.SceneID)
		area, err := o.api.AllocateArea(ctx, ids, extent.GeoJSON)
		if err != nil {
			return nil, fmt.Errorf("could not allocate area for scene %s: %w", scene.SceneID, err)
		}
		run.Area = area
		fmt.Fprintf(o.out, "# %s\n--> km2: %v\n--> cost: %v\n", scene.Title(), area.Km2, area.Cost)

		log.Printf("=== starting kraken analyses for scene %s ===", scene.SceneID)
		if run.Cars, err = o.api.ReleaseInitiate(ctx, spaceknow.MapTypeCars, ids, extent.GeoJSON); err != nil {
			return nil, fmt.Errorf("could not start cars analysis for scene %s: %w", scene.SceneID, err)
		}
		if run.Imagery, err = o.api.ReleaseInitiate(ctx, spaceknow.MapTypeImagery, ids, extent.GeoJSON); err != nil {
			return nil, fmt.Errorf("could not start imagery analysis for scene %s: %w", scene.SceneID, err)
		}
		o.pipelineToScene.Set(run.Cars.ID, scene.SceneID)
		o.pipelineToScene.Set(run.Imagery.ID, scene.SceneID)
		o.runs.Set(scene.SceneID, run)
		runs = append(runs, run)
	}
	return runs, nil
}

// SceneOf returns the scene a pipeline was started for
func (o *Orchestrator) SceneOf(pipelineID string) (string, bool) {
	return o.pipelineToScene.Get(pipelineID)
}

// waitAnalysis waits for a kraken pipeline. A failed pipeline marks the run failed and reports false.
func (o *Orchestrator) waitAnalysis(ctx context.Context, run *SceneRun, pipeline spaceknow.Pipeline, mapType string) (bool, error) {
	err := o.api.WaitPipeline(ctx, pipeline)
	var failed *spaceknow.PipelineFailedError
	if errors.As(err, &failed) {
		log.Printf("  %s analysis of scene %s failed", mapType, run.Scene.SceneID)
		run.Err = err
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("waiting for %s analysis: %w", mapType, err)
	}
	return true, nil
}
