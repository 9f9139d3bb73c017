package store

import "github.com/bluebrain/bbic/internal/bbicerr"

// Matrix4 is a row-major 4x4 matrix, the local_to_world attribute type of
// spec.md §4.7.
type Matrix4 [16]float64

// GetUint32 reads a required uint32 attribute.
func GetUint32(a Attrs, name string) (uint32, error) {
	v, ok := a.Get(name)
	if !ok {
		return 0, missingAttr(name)
	}
	u, ok := v.(uint32)
	if !ok {
		return 0, wrongAttrType(name, "uint32")
	}
	return u, nil
}

// GetUint32Or returns the attribute, or def if it is absent.
func GetUint32Or(a Attrs, name string, def uint32) uint32 {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	u, ok := v.(uint32)
	if !ok {
		return def
	}
	return u
}

// GetBool reads a required bool attribute.
func GetBool(a Attrs, name string) (bool, error) {
	v, ok := a.Get(name)
	if !ok {
		return false, missingAttr(name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, wrongAttrType(name, "bool")
	}
	return b, nil
}

// GetString reads a required string attribute.
func GetString(a Attrs, name string) (string, error) {
	v, ok := a.Get(name)
	if !ok {
		return "", missingAttr(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", wrongAttrType(name, "string")
	}
	return s, nil
}

// GetStringOr returns the attribute, or def if it is absent.
func GetStringOr(a Attrs, name, def string) string {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetMatrix4 reads a required 4x4 matrix attribute.
func GetMatrix4(a Attrs, name string) (Matrix4, error) {
	v, ok := a.Get(name)
	if !ok {
		return Matrix4{}, missingAttr(name)
	}
	m, ok := v.(Matrix4)
	if !ok {
		return Matrix4{}, wrongAttrType(name, "Matrix4")
	}
	return m, nil
}

func missingAttr(name string) error {
	return bbicerr.New(bbicerr.MissingEntity, "attribute %q not set", name)
}

func wrongAttrType(name, want string) error {
	return bbicerr.New(bbicerr.InvalidArgument, "attribute %q is not a %s", name, want)
}
