package detect

import (
	"fmt"
	"strings"

	"github.com/pdok/skmosaic/mapslicehelp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	ClassCars   = "cars"
	ClassTrucks = "trucks"
)

// ClassCounts counts detected items per class, in order of first appearance.
type ClassCounts struct {
	counts *orderedmap.OrderedMap[string, int]
}

func NewClassCounts() *ClassCounts {
	return &ClassCounts{counts: orderedmap.New[string, int]()}
}

// CountClasses counts the features of all collections by class.
func CountClasses(collections ...FeatureCollection) *ClassCounts {
	c := NewClassCounts()
	for _, fc := range collections {
		for _, f := range fc.Features {
			c.Add(f.Class, 1)
		}
	}
	return c
}

func (c *ClassCounts) Add(class string, n int) {
	current, _ := c.counts.Get(class)
	c.counts.Set(class, current+n)
}

// Merge adds all counts of other.
func (c *ClassCounts) Merge(other *ClassCounts) {
	for p := other.counts.Oldest(); p != nil; p = p.Next() {
		c.Add(p.Key, p.Value)
	}
}

func (c *ClassCounts) Get(class string) int {
	n, _ := c.counts.Get(class)
	return n
}

func (c *ClassCounts) Classes() []string {
	return mapslicehelp.OrderedMapKeys(c.counts)
}

func (c *ClassCounts) Total() int {
	return mapslicehelp.SumVals(c.counts)
}

func (c *ClassCounts) String() string {
	parts := make([]string, 0, c.counts.Len())
	for p := c.counts.Oldest(); p != nil; p = p.Next() {
		parts = append(parts, fmt.Sprintf("%s=%d", p.Key, p.Value))
	}
	return strings.Join(parts, ", ")
}

// Map returns the counts as a plain map
func (c *ClassCounts) Map() map[string]int {
	m := make(map[string]int, c.counts.Len())
	for p := c.counts.Oldest(); p != nil; p = p.Next() {
		m[p.Key] = p.Value
	}
	return m
}
