// Package bbic implements the container schema of spec.md §3/§4/§6: the
// Stack/StackLevel tiled-image pyramid model and the Volume/VolumeLOD block
// octree model, wired onto the internal/store GroupStore abstraction.
package bbic

import "github.com/bluebrain/bbic/internal/store"

// Axis selects the rotation used to derive a stack's local_to_world matrix,
// the "--mat" CLI flag of spec.md §6. It is distinct from Orientation, which
// only records the anatomical meaning of the stack for downstream tools.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ParseAxis converts a CLI-facing axis letter to an Axis.
func ParseAxis(s string) (Axis, bool) {
	switch s {
	case "X", "x":
		return AxisX, true
	case "Y", "y":
		return AxisY, true
	case "Z", "z":
		return AxisZ, true
	default:
		return 0, false
	}
}

// LocalToWorld computes the 4x4 local-to-world matrix for a stack of the
// given dimensions and rotation axis, matching bbic/stack.py's
// _get_local_to_world: a translation recentring the volume at the origin,
// composed with a rotation selected by axis.
//
// The matrix is returned row-major, matching Matrix4's layout.
func LocalToWorld(width, height, numSlices int, axis Axis) store.Matrix4 {
	t := identity4()
	t[3] = -float64(width >> 1)
	t[7] = -float64(height >> 1)
	t[11] = -float64(numSlices >> 1)

	rot := rotationFor(axis)
	return mul4(rot, t)
}

func identity4() store.Matrix4 {
	return store.Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// rotationFor returns the rotation matrix the teacher's Python source builds
// per axis. X and Y use non-orthonormal-looking but deliberate swaps taken
// directly from the original (Y additionally negates its middle row via a
// flip matrix); Z is the identity.
func rotationFor(axis Axis) store.Matrix4 {
	switch axis {
	case AxisX:
		return store.Matrix4{
			0, 1, 0, 0,
			0, 0, 1, 0,
			1, 0, 0, 0,
			0, 0, 0, 1,
		}
	case AxisY:
		rot := store.Matrix4{
			0, 0, 1, 0,
			0, -1, 0, 0,
			1, 0, 0, 0,
			0, 0, 0, 1,
		}
		flip := identity4()
		flip[5] = -1
		return mul4(flip, rot)
	default: // AxisZ
		return identity4()
	}
}

func mul4(a, b store.Matrix4) store.Matrix4 {
	var out store.Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}
