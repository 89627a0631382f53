package analysis

import (
	"fmt"
	"io"

	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/mapslicehelp"
)

// Stats summarizes an analysis
type Stats struct {
	Processed int
	Failed    []string
	Counts    *detect.ClassCounts
}

func (s Stats) Successful() int {
	return s.Processed - len(s.Failed)
}

// Stats collects the statistics of all launched scenes
func (o *Orchestrator) Stats() Stats {
	stats := Stats{Counts: detect.NewClassCounts()}
	for _, run := range mapslicehelp.OrderedMapValues(o.runs) {
		stats.Processed++
		if run.Failed() {
			stats.Failed = append(stats.Failed, run.Scene.SceneID)
		}
		if run.Counts != nil {
			stats.Counts.Merge(run.Counts)
		}
	}
	return stats
}

func (s Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "-> Scenes processed: %d\n", s.Processed)
	fmt.Fprintf(w, "--> successfully: %d\n", s.Successful())
	fmt.Fprintf(w, "--> unsuccessfully: %d\n", len(s.Failed))
	cars, trucks := 0, 0
	if s.Counts != nil {
		cars, trucks = s.Counts.Get(detect.ClassCars), s.Counts.Get(detect.ClassTrucks)
	}
	fmt.Fprintf(w, "-> Detected items: %d total\n", cars+trucks)
	fmt.Fprintf(w, "--> cars: %d\n", cars)
	fmt.Fprintf(w, "--> trucks: %d\n", trucks)
}
