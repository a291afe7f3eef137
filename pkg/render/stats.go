package render

import (
	"sync/atomic"

	"github.com/go-drift/renderbridge/pkg/codec"
)

// Stats is a point-in-time snapshot of a provider's counters.
type Stats struct {
	RuntimeID     int64                  `json:"runtimeId"`
	Density       float32                `json:"density"`
	Commands      map[string]int64       `json:"commands"`
	Errors        int64                  `json:"errors"`
	Batches       int64                  `json:"batches"`
	InBatch       bool                   `json:"inBatch"`
	LastBatchSize int64                  `json:"lastBatchSize"`
	Events        int64                  `json:"events"`
	Callbacks     int64                  `json:"callbacks"`
	Strings       codec.StringTableStats `json:"strings"`
	Destroyed     bool                   `json:"destroyed"`
}

type counters struct {
	commands      [commandKindCount]atomic.Int64
	errors        atomic.Int64
	batches       atomic.Int64
	inBatch       atomic.Bool
	lastBatchSize atomic.Int64
	events        atomic.Int64
	callbacks     atomic.Int64
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Commands:      make(map[string]int64, commandKindCount-1),
		Errors:        c.errors.Load(),
		Batches:       c.batches.Load(),
		InBatch:       c.inBatch.Load(),
		LastBatchSize: c.lastBatchSize.Load(),
		Events:        c.events.Load(),
		Callbacks:     c.callbacks.Load(),
	}
	for _, k := range CommandKinds() {
		s.Commands[k.String()] = c.commands[k].Load()
	}
	return s
}
