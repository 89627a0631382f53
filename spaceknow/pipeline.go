package spaceknow

import (
	"context"
	"fmt"
	"log"
	"time"
)

// PipelineFailedError is returned when a pipeline ends in status FAILED
type PipelineFailedError struct {
	PipelineID string
}

func (e *PipelineFailedError) Error() string {
	return fmt.Sprintf("pipeline %s failed", e.PipelineID)
}

// WaitPipeline blocks until the pipeline is resolved, checking its status every nextTry seconds.
func (c *Client) WaitPipeline(ctx context.Context, pipeline Pipeline) error {
	status := PipelineStatus{Status: pipeline.Status, NextTry: pipeline.NextTry}
	log.Printf("  waiting for pipeline %s", pipeline.ID)
	for checks := 1; ; checks++ {
		switch status.Status {
		case StatusResolved:
			log.Printf("  pipeline %s resolved after %d check(s)", pipeline.ID, checks)
			return nil
		case StatusFailed:
			return &PipelineFailedError{PipelineID: pipeline.ID}
		}

		if err := c.sleep(ctx, time.Duration(status.NextTry)*time.Second); err != nil {
			return err
		}
		var err error
		status, err = c.PipelineStatus(ctx, pipeline.ID)
		if err != nil {
			return fmt.Errorf("could not get status of pipeline %s: %w", pipeline.ID, err)
		}
	}
}
