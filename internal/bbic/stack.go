package bbic

import (
	"fmt"
	"math"
	"time"

	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/store"
)

// Stack is a tiled image stack of one or more resolution Levels, grounded on
// bbic/stack.py's Stack class.
type Stack struct {
	store store.GroupStore
	path  string

	Index             int
	Width             int
	Height            int
	NumSlices         int
	TileSize          int
	Format            string
	NumLevels         int
	IsVideo           bool
	FPS               uint32
	Description       string
	OriginalFilenames string
	Orientation       string
	SlicePositions    string
	LocalToWorld      store.Matrix4
	ModifyTime        string
}

func (s *Stack) String() string {
	return fmt.Sprintf("Stack%d [%d, %d, %d], tile size: %d, #levels: %d, format: %s",
		s.Index, s.Width, s.Height, s.NumSlices, s.TileSize, s.NumLevels, s.Format)
}

func (s *Stack) levelPath(level int) string {
	return fmt.Sprintf("%s/levels/%d", s.path, level)
}

func (s *Stack) readAttrs() error {
	a, err := s.store.Attrs(s.path)
	if err != nil {
		return err
	}
	width, err := store.GetUint32(a, "width")
	if err != nil {
		return err
	}
	height, err := store.GetUint32(a, "height")
	if err != nil {
		return err
	}
	numSlices, err := store.GetUint32(a, "num_slices")
	if err != nil {
		return err
	}
	tileSize, err := store.GetUint32(a, "tile_size")
	if err != nil {
		return err
	}
	numLevels, err := store.GetUint32(a, "num_levels")
	if err != nil {
		return err
	}
	mime, err := store.GetString(a, "type")
	if err != nil {
		return err
	}
	isVideo, err := store.GetBool(a, "is_video")
	if err != nil {
		return err
	}
	fps := store.GetUint32Or(a, "fps", 0)
	mat, err := store.GetMatrix4(a, "local_to_world")
	if err != nil {
		return err
	}

	s.Width, s.Height, s.NumSlices, s.TileSize, s.NumLevels = int(width), int(height), int(numSlices), int(tileSize), int(numLevels)
	s.Format = formatFromMIME(mime)
	s.IsVideo = isVideo
	s.FPS = fps
	s.LocalToWorld = mat
	s.Description = store.GetStringOr(a, "description", "")
	s.OriginalFilenames = store.GetStringOr(a, "original_filenames", "")
	s.Orientation = store.GetStringOr(a, "orientation", "")
	s.SlicePositions = store.GetStringOr(a, "slice_positions", "")
	s.ModifyTime = store.GetStringOr(a, "modify_time", "")
	return nil
}

func (s *Stack) writeAttrs() error {
	a, err := s.store.Attrs(s.path)
	if err != nil {
		return err
	}
	a.Set("width", uint32(s.Width))
	a.Set("height", uint32(s.Height))
	a.Set("num_slices", uint32(s.NumSlices))
	a.Set("tile_size", uint32(s.TileSize))
	a.Set("type", mimeFromFormat(s.Format))
	a.Set("num_levels", uint32(s.NumLevels))
	a.Set("is_video", s.IsVideo)
	a.Set("fps", s.FPS)
	a.Set("description", s.Description)
	a.Set("original_filenames", s.OriginalFilenames)
	a.Set("local_to_world", s.LocalToWorld)
	a.Set("orientation", s.Orientation)
	a.Set("slice_positions", s.SlicePositions)
	s.updateModifyTime(a)
	return nil
}

// updateModifyTime stamps modify_time with the current UTC time, mirroring
// stack.py's write_attrs() calling update_modify_time() as its last step.
func (s *Stack) updateModifyTime(a store.Attrs) {
	s.ModifyTime = time.Now().UTC().Format("2006-01-02 15:04:05.000000")
	a.Set("modify_time", s.ModifyTime)
}

func formatFromMIME(mime string) string {
	const prefix = "image/"
	f := mime
	if len(f) > len(prefix) && f[:len(prefix)] == prefix {
		f = f[len(prefix):]
	}
	out := make([]byte, len(f))
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func mimeFromFormat(format string) string {
	lower := make([]byte, len(format))
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return "image/" + string(lower)
}

// SetAxis recomputes the stack's local_to_world matrix for the given
// rotation axis, to be called before writeAttrs.
func (s *Stack) SetAxis(axis Axis) {
	s.LocalToWorld = LocalToWorld(s.Width, s.Height, s.NumSlices, axis)
}

// Codec returns the ImageCodec matching this stack's tile format.
func (s *Stack) Codec() (codec.ImageCodec, error) {
	f, err := codec.ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}
	return codec.NewCodec(f)
}

// ComputeNumLevels returns the number of pyramid levels this stack should
// contain, per spec.md §4.2's two derivation rules (REDESIGN FLAGS keeps
// both: legacy stops at 1px, the tile-size-limited rule stops once a level
// would be smaller than one tile).
func (s *Stack) ComputeNumLevels(limitToTileSize bool) int {
	if limitToTileSize {
		return int(math.Ceil(math.Log2(float64(maxInt(s.Width, s.Height)))-math.Log2(float64(s.TileSize)))) + 1
	}
	return int(math.Floor(math.Log2(float64(minInt(s.Width, s.Height))))) + 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// CreateLevels computes and creates every pyramid level for this stack.
// generateLods=false produces only the base level (level 0); otherwise the
// level count follows ComputeNumLevels' tile-size-limited rule, never below 1.
func (s *Stack) CreateLevels(generateLods bool) ([]*StackLevel, error) {
	if generateLods {
		s.NumLevels = s.ComputeNumLevels(true)
		if s.NumLevels < 1 {
			s.NumLevels = 1
		}
	} else {
		s.NumLevels = 1
	}
	if err := s.writeAttrs(); err != nil {
		return nil, err
	}
	levels := make([]*StackLevel, s.NumLevels)
	for l := 0; l < s.NumLevels; l++ {
		level, err := s.GetLevel(l)
		if err != nil {
			return nil, err
		}
		levels[l] = level
	}
	return levels, nil
}

// GetLevel returns the level at the given index, creating it (and its
// num_x_tiles/num_y_tiles/num_slices attributes) if it does not yet exist.
func (s *Stack) GetLevel(levelIndex int) (*StackLevel, error) {
	path := s.levelPath(levelIndex)
	c, err := s.Codec()
	if err != nil {
		return nil, err
	}
	level := &StackLevel{store: s.store, path: path, Index: levelIndex, TileSize: s.TileSize, codec: c}
	if !s.store.Has(path) {
		if err := s.store.CreateGroup(path); err != nil {
			return nil, err
		}
		level.NumXTiles = int(math.Ceil(float64(s.Width>>levelIndex) / float64(s.TileSize)))
		level.NumYTiles = int(math.Ceil(float64(s.Height>>levelIndex) / float64(s.TileSize)))
		level.NumSlices = s.NumSlices
		if err := level.writeAttrs(); err != nil {
			return nil, err
		}
	} else {
		if err := level.readAttrs(); err != nil {
			return nil, err
		}
	}
	level.Width = s.Width >> levelIndex
	level.Height = s.Height >> levelIndex
	return level, nil
}
