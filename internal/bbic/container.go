package bbic

import (
	"fmt"

	"github.com/bluebrain/bbic/internal/bbicerr"
	"github.com/bluebrain/bbic/internal/store"
)

// RootPath is the GroupStore path of the container root, per spec.md §6.
const RootPath = "bbic"

// FormatVersion is the current on-disk container schema version, recorded
// in the root group's "version" attribute.
const FormatVersion uint32 = 1

// Container is the top-level "bbic" group: a collection of Stacks and
// Volumes, grounded on bbic/file.py's File class.
type Container struct {
	Store      store.GroupStore
	Version    uint32
	NumStacks  uint32
	NumVolumes uint32
}

// Open reads an existing container's root attributes, or creates the root
// group with a fresh version/counts if it does not yet exist.
func Open(s store.GroupStore) (*Container, error) {
	c := &Container{Store: s}
	if s.Has(RootPath) {
		if err := c.readAttrs(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := s.CreateGroup(RootPath); err != nil {
		return nil, err
	}
	c.Version = FormatVersion
	if err := c.writeAttrs(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) readAttrs() error {
	a, err := c.Store.Attrs(RootPath)
	if err != nil {
		return err
	}
	c.Version = store.GetUint32Or(a, "version", 0)
	c.NumStacks = store.GetUint32Or(a, "num_stacks", 0)
	c.NumVolumes = store.GetUint32Or(a, "num_volumes", 0)
	return nil
}

func (c *Container) writeAttrs() error {
	a, err := c.Store.Attrs(RootPath)
	if err != nil {
		return err
	}
	a.Set("version", c.Version)
	a.Set("num_stacks", c.NumStacks)
	a.Set("num_volumes", c.NumVolumes)
	return nil
}

func stackPath(index int) string {
	return fmt.Sprintf("%s/stacks/%d", RootPath, index)
}

func volumePath(index int) string {
	return fmt.Sprintf("%s/volumes/%d", RootPath, index)
}

// CreateStack creates a new, empty Stack at the given index. Fails with
// AlreadyExists if a stack already occupies that index.
func (c *Container) CreateStack(index int) (*Stack, error) {
	path := stackPath(index)
	if c.Store.Has(path) {
		return nil, bbicerr.New(bbicerr.AlreadyExists, "stack %d already exists", index)
	}
	if err := c.Store.CreateGroup(path); err != nil {
		return nil, err
	}
	s := &Stack{store: c.Store, path: path, Index: index, Format: "JPEG"}
	s.LocalToWorld = LocalToWorld(0, 0, 0, AxisZ)
	if uint32(index) >= c.NumStacks {
		c.NumStacks = uint32(index) + 1
		if err := c.writeAttrs(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetStack opens an existing Stack at the given index.
func (c *Container) GetStack(index int) (*Stack, error) {
	path := stackPath(index)
	if !c.Store.Has(path) {
		return nil, bbicerr.New(bbicerr.MissingEntity, "stack %d does not exist", index)
	}
	s := &Stack{store: c.Store, path: path, Index: index}
	if err := s.readAttrs(); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateVolume creates a new, empty Volume at the given index.
func (c *Container) CreateVolume(index int) (*Volume, error) {
	path := volumePath(index)
	if c.Store.Has(path) {
		return nil, bbicerr.New(bbicerr.AlreadyExists, "volume %d already exists", index)
	}
	if err := c.Store.CreateGroup(path); err != nil {
		return nil, err
	}
	v := &Volume{store: c.Store, path: path, Index: index, Version: VolumeVersionCurrent}
	if uint32(index) >= c.NumVolumes {
		c.NumVolumes = uint32(index) + 1
		if err := c.writeAttrs(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// GetVolume opens an existing Volume at the given index.
func (c *Container) GetVolume(index int) (*Volume, error) {
	path := volumePath(index)
	if !c.Store.Has(path) {
		return nil, bbicerr.New(bbicerr.MissingEntity, "volume %d does not exist", index)
	}
	v := &Volume{store: c.Store, path: path, Index: index}
	if err := v.readAttrs(); err != nil {
		return nil, err
	}
	return v, nil
}
