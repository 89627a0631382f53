package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/pdok/skmosaic/mercator"
	"github.com/pdok/skmosaic/spaceknow"
	"github.com/pdok/skmosaic/store"
	"github.com/pdok/skmosaic/tiles"
	"golang.org/x/sync/errgroup"
)

// MosaicZoom is the zoom the imagery is stitched at: the detection zoom plus offset,
// capped by the imagery's max zoom (and mercator.MaxZoom) but never below the zoom the imagery was delivered at.
func MosaicZoom(detectionZoom, imageryZoom, maxZoom, offset uint) uint {
	z := detectionZoom + offset
	if maxZoom > 0 && z > maxZoom {
		z = maxZoom
	}
	if z > mercator.MaxZoom {
		z = mercator.MaxZoom
	}
	if z < imageryZoom {
		z = imageryZoom
	}
	return z
}

// ProcessScene waits for the analyses of a launched scene, downloads their tiles and composes the result.
// A failed pipeline marks the run failed without returning an error; the imagery of a scene whose
// cars analysis failed is not processed.
func (o *Orchestrator) ProcessScene(ctx context.Context, run *SceneRun) error {
	sceneID := run.Scene.SceneID
	log.Printf("=== processing scene %s ===", sceneID)
	scene, err := store.Open(o.dir, sceneID)
	if err != nil {
		return err
	}

	ok, err := o.waitAnalysis(ctx, run, run.Cars, spaceknow.MapTypeCars)
	if err != nil || !ok {
		return err
	}
	cars, err := o.api.ReleaseRetrieve(ctx, run.Cars.ID)
	if err != nil {
		return fmt.Errorf("could not retrieve cars analysis: %w", err)
	}
	detectionTiles, err := tiles.FromTriples(cars.Tiles)
	if err != nil {
		return err
	}
	log.Printf("  downloading %d detection tile(s) of map %s", len(detectionTiles), cars.MapID)
	if err = o.download(ctx, cars.MapID, detectionTiles, spaceknow.FileDetections, scene.SaveDetections); err != nil {
		return err
	}
	if run.Counts, err = countDetections(scene, detectionTiles); err != nil {
		return err
	}

	ok, err = o.waitAnalysis(ctx, run, run.Imagery, spaceknow.MapTypeImagery)
	if err != nil || !ok {
		return err
	}
	imagery, err := o.api.ReleaseRetrieve(ctx, run.Imagery.ID)
	if err != nil {
		return fmt.Errorf("could not retrieve imagery analysis: %w", err)
	}
	imageryTiles, err := tiles.FromTriples(imagery.Tiles)
	if err != nil {
		return err
	}
	if len(imageryTiles) == 0 {
		return errors.New("imagery analysis returned no tiles")
	}
	imageryZoom, err := tiles.Zoom(imageryTiles)
	if err != nil {
		return err
	}
	detectionZoom := imageryZoom
	if len(detectionTiles) > 0 {
		if detectionZoom, err = tiles.Zoom(detectionTiles); err != nil {
			return err
		}
	}
	zoom := MosaicZoom(detectionZoom, imageryZoom, imagery.MaxZoom, o.settings.Render.MosaicZoomOffset)
	mosaicTiles := tiles.Retile(imageryTiles, zoom)
	log.Printf("  downloading %d imagery tile(s) at zoom %d of map %s", len(mosaicTiles), zoom, imagery.MapID)
	if err = o.download(ctx, imagery.MapID, mosaicTiles, spaceknow.FileTruecolor, scene.SaveImagery); err != nil {
		return err
	}

	manifest := store.Manifest{
		SceneID:        sceneID,
		Title:          run.Scene.Title(),
		DetectionTiles: tiles.Triples(detectionTiles),
		ImageryTiles:   tiles.Triples(mosaicTiles),
		MosaicZoom:     zoom,
	}
	manifest, counts, err := Compose(scene, manifest, o.settings)
	if err != nil {
		return err
	}
	run.Counts = counts
	run.ResultPath = scene.ResultPath(o.settings.Render.Format)
	fmt.Fprintf(o.out, "# %s: %s (%s)\n", sceneID, manifest.Result, counts)
	return nil
}

// download fetches a file of every tile concurrently and saves it. Tiles the API does not have are skipped.
func (o *Orchestrator) download(ctx context.Context, mapID string, addresses []tiles.Address, file string, save func(tiles.Address, []byte) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.settings.Parallelism))
	for _, a := range addresses {
		a := a
		g.Go(func() error {
			data, err := o.api.GridTile(ctx, mapID, a, file)
			var apiErr *spaceknow.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				log.Printf("    warning: %s of tile %d/%d/%d not available", file, a.Z, a.X, a.Y)
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not download %s of tile %d/%d/%d: %w", file, a.Z, a.X, a.Y, err)
			}
			return save(a, data)
		})
	}
	return g.Wait()
}
