package processing

import (
	"github.com/go-spatial/geom"
)

type Feature interface {
	Columns() []interface{}
	Geometry() geom.Geometry
}

// Source sends its features on the channel. The channel is closed by the caller.
type Source interface {
	ReadFeatures(chan<- Feature) error
}

// Target consumes features until the channel is closed.
// It must keep draining the channel after a failure.
type Target interface {
	WriteFeatures(<-chan Feature) error
}
