package spaceknow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdok/skmosaic/tiles"
)

// UserInfo returns the account information as sent by the API
func (c *Client) UserInfo(ctx context.Context) (map[string]interface{}, error) {
	info := make(map[string]interface{})
	err := c.post(ctx, "/user/info", nil, &info)
	return info, err
}

func (c *Client) RemainingCredit(ctx context.Context) (float64, error) {
	var result struct {
		RemainingCredit float64 `json:"remainingCredit"`
	}
	err := c.post(ctx, "/credits/get-remaining-credit", nil, &result)
	return result.RemainingCredit, err
}

// AllocateArea reserves credits for analysing the extent in the given scenes
func (c *Client) AllocateArea(ctx context.Context, sceneIDs []string, extent json.RawMessage) (AllocatedArea, error) {
	var result AllocatedArea
	body := map[string]interface{}{
		"sceneIds": sceneIDs,
		"extent":   extent,
	}
	err := c.post(ctx, "/credits/allocate-area", body, &result)
	return result, err
}

func (c *Client) SearchInitiate(ctx context.Context, request SearchRequest) (Pipeline, error) {
	var pipeline Pipeline
	if err := validate.Struct(request); err != nil {
		return pipeline, fmt.Errorf("invalid search request: %w", err)
	}
	err := c.post(ctx, "/imagery/search/initiate", request, &pipeline)
	return pipeline, err
}

// SearchRetrieve returns all scenes found by a resolved search pipeline, following the cursor.
func (c *Client) SearchRetrieve(ctx context.Context, pipelineID string) ([]Scene, error) {
	var scenes []Scene
	var cursor *string
	for {
		body := map[string]interface{}{"pipelineId": pipelineID}
		if cursor != nil {
			body["cursor"] = *cursor
		}
		var page searchResults
		if err := c.post(ctx, "/imagery/search/retrieve", body, &page); err != nil {
			return nil, err
		}
		scenes = append(scenes, page.Results...)
		if page.Cursor == nil || *page.Cursor == "" {
			return scenes, nil
		}
		cursor = page.Cursor
	}
}

func (c *Client) PipelineStatus(ctx context.Context, pipelineID string) (PipelineStatus, error) {
	var status PipelineStatus
	err := c.post(ctx, "/tasking/get-status", map[string]string{"pipelineId": pipelineID}, &status)
	return status, err
}

// ReleaseInitiate starts a kraken analysis of the given map type
func (c *Client) ReleaseInitiate(ctx context.Context, mapType string, sceneIDs []string, extent json.RawMessage) (Pipeline, error) {
	var pipeline Pipeline
	body := map[string]interface{}{
		"mapType":  mapType,
		"sceneIds": sceneIDs,
		"extent":   extent,
	}
	err := c.post(ctx, "/kraken/release/initiate", body, &pipeline)
	return pipeline, err
}

func (c *Client) ReleaseRetrieve(ctx context.Context, pipelineID string) (KrakenResult, error) {
	var result KrakenResult
	err := c.post(ctx, "/kraken/release/retrieve", map[string]string{"pipelineId": pipelineID}, &result)
	return result, err
}

// GridTile downloads one file of a kraken grid tile
func (c *Client) GridTile(ctx context.Context, mapID string, a tiles.Address, file string) ([]byte, error) {
	url := fmt.Sprintf("%s/kraken/grid/%s/-/%d/%d/%d/%s", c.baseURL, mapID, a.Z, a.X, a.Y, file)
	resp, err := c.send(ctx, http.MethodGet, url, nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}
