package engine

import (
	"context"
	"fmt"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/timeline"
)

// FramesProperty is the entity property holding the configured frame
// range in block syntax, e.g. "1001-1100x1". Properties merge
// hierarchically, so a range set on entity:/shots/010 covers every shot
// in the sequence until a shot sets its own.
const FramesProperty = "frames"

// propertyFrames resolves frame ranges from stored entity properties.
type propertyFrames struct {
	meta Metadata
}

// FrameRange implements jobgraph.FrameSource. Property reads hit the
// local metadata database, so no caller context is threaded through.
func (f propertyFrames) FrameRange(e entity.Entity) (timeline.BlockRange, bool, error) {
	props, err := f.meta.GetProperties(context.Background(), e.URI())
	if err != nil {
		return timeline.BlockRange{}, false, err
	}
	raw, ok := props[FramesProperty]
	if !ok {
		return timeline.BlockRange{}, false, nil
	}
	r, err := timeline.ParseBlockRange(raw)
	if err != nil {
		return timeline.BlockRange{}, false, fmt.Errorf("frames property of %s: %w", e.URI(), err)
	}
	return r, true, nil
}
