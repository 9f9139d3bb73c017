package project

import (
	"image"

	"github.com/bluebrain/bbic/internal/bbic"
)

// levelImageSource adapts an already-filled StackLevel (level 0 of a
// projected stack) into an internal/source.ImageSource, so
// internal/pyramid.Builder can recurse into it for LODs 1..L-1 without
// a dedicated code path.
type levelImageSource struct {
	level *bbic.StackLevel
}

func (s *levelImageSource) Dimensions() (int, int, int) {
	return s.level.Width, s.level.Height, s.level.NumSlices
}

func (s *levelImageSource) Image(index int, padding uint8) (*image.Gray, error) {
	return s.level.GetImage(index, padding)
}
