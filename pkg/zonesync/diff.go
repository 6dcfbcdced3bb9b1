package zonesync

import (
	"maps"
	"slices"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// Change is a partial edit of a zone.
type Change struct {
	// Cells replaces the whole cell set when non-nil.
	Cells []string

	// Add and Remove edit the cell set. They apply after Cells.
	Add    []string
	Remove []string

	// Name renames the zone when non-nil.
	Name *string

	// Attributes sets attribute values; DeleteAttributes removes them.
	Attributes       map[string]string
	DeleteAttributes []string
}

// Apply returns a copy of zone with the change applied.
func (c Change) Apply(zone *wire.Zone) *wire.Zone {
	out := zone.Clone()
	if out == nil {
		out = &wire.Zone{}
	}

	cells := out.CellSet()
	if c.Cells != nil {
		cells = make(map[string]struct{}, len(c.Cells))
		for _, id := range c.Cells {
			cells[id] = struct{}{}
		}
	}
	for _, id := range c.Add {
		cells[id] = struct{}{}
	}
	for _, id := range c.Remove {
		delete(cells, id)
	}
	out.Cells = slices.Sorted(maps.Keys(cells))

	if c.Name != nil {
		out.Name = *c.Name
	}
	if len(c.Attributes) > 0 || len(c.DeleteAttributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]string)
		}
		maps.Copy(out.Attributes, c.Attributes)
		for _, k := range c.DeleteAttributes {
			delete(out.Attributes, k)
		}
		if len(out.Attributes) == 0 {
			out.Attributes = nil
		}
	}
	return out
}

// Diff computes the change-set that turns before into after.
func Diff(before, after *wire.Zone) wire.ZoneDiff {
	if before == nil {
		before = &wire.Zone{}
	}
	if after == nil {
		after = &wire.Zone{}
	}

	var d wire.ZoneDiff
	prev, next := before.CellSet(), after.CellSet()
	for id := range next {
		if _, ok := prev[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}

	setValue := func(k, v string) {
		if d.Values == nil {
			d.Values = make(map[string]string)
		}
		d.Values[k] = v
	}
	if before.Name != after.Name {
		d.Modified = append(d.Modified, wire.FieldName)
		setValue(wire.FieldName, after.Name)
	}
	for k, v := range after.Attributes {
		if old, ok := before.Attributes[k]; !ok || old != v {
			d.Modified = append(d.Modified, k)
			setValue(k, v)
		}
	}
	for k := range before.Attributes {
		if _, ok := after.Attributes[k]; !ok {
			d.Modified = append(d.Modified, k)
		}
	}

	d.Normalize()
	return d
}

// Apply returns a copy of zone with the diff applied. A modified attribute
// without a value is deleted.
func Apply(zone *wire.Zone, d wire.ZoneDiff) *wire.Zone {
	c := Change{
		Add:    d.Added,
		Remove: d.Removed,
	}
	for _, k := range d.Modified {
		v, ok := d.Values[k]
		if k == wire.FieldName {
			name := v
			c.Name = &name
			continue
		}
		if !ok {
			c.DeleteAttributes = append(c.DeleteAttributes, k)
			continue
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string)
		}
		c.Attributes[k] = v
	}
	return c.Apply(zone)
}

// Merge combines diffs applied in order into one change-set for conflict
// checks. Later values win.
func Merge(diffs ...wire.ZoneDiff) wire.ZoneDiff {
	var out wire.ZoneDiff
	for _, d := range diffs {
		out.Added = append(out.Added, d.Added...)
		out.Removed = append(out.Removed, d.Removed...)
		out.Modified = append(out.Modified, d.Modified...)
		for k, v := range d.Values {
			if out.Values == nil {
				out.Values = make(map[string]string)
			}
			out.Values[k] = v
		}
		if d.Timestamp > out.Timestamp {
			out.Timestamp = d.Timestamp
		}
		out.Source = d.Source
	}
	out.Normalize()
	return out
}

// Conflicts returns true if the local diff touches what the server diff
// changed in the opposite direction.
func Conflicts(local, server wire.ZoneDiff) bool {
	return intersects(local.Added, server.Removed) ||
		intersects(local.Removed, server.Added) ||
		intersects(local.Modified, server.Modified)
}

// Strip returns the local diff without the elements that conflict with the
// server diff.
func Strip(local, server wire.ZoneDiff) wire.ZoneDiff {
	out := local.Clone()
	out.Added = without(out.Added, server.Removed)
	out.Removed = without(out.Removed, server.Added)
	out.Modified = without(out.Modified, server.Modified)
	for k := range out.Values {
		if !slices.Contains(out.Modified, k) {
			delete(out.Values, k)
		}
	}
	if len(out.Values) == 0 {
		out.Values = nil
	}
	return out
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func without(s, drop []string) []string {
	if len(s) == 0 || len(drop) == 0 {
		return s
	}
	out := s[:0:0]
	for _, x := range s {
		if !slices.Contains(drop, x) {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
