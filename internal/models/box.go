package models

import "fmt"

// Box is an axis-aligned box of half-open intervals [Min, Max) along Z, Y, X.
type Box struct {
	Min [3]int `json:"min"`
	Max [3]int `json:"max"`
}

func (b Box) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d, %d:%d]", b.Min[0], b.Max[0], b.Min[1], b.Max[1], b.Min[2], b.Max[2])
}

// Size returns the extent of the box along each axis.
func (b Box) Size() [3]int {
	return [3]int{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Len is the number of voxels inside the box.
func (b Box) Len() int {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

// Empty reports whether the box contains no voxel.
func (b Box) Empty() bool {
	for a := 0; a < 3; a++ {
		if b.Max[a] <= b.Min[a] {
			return true
		}
	}
	return false
}

// Contains reports whether voxel (z, y, x) lies in the box.
func (b Box) Contains(z, y, x int) bool {
	return z >= b.Min[0] && z < b.Max[0] &&
		y >= b.Min[1] && y < b.Max[1] &&
		x >= b.Min[2] && x < b.Max[2]
}

// ContainsBox reports whether o lies entirely within b.
func (b Box) ContainsBox(o Box) bool {
	for a := 0; a < 3; a++ {
		if o.Min[a] < b.Min[a] || o.Max[a] > b.Max[a] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two boxes. The result may be empty but
// never has Min > Max.
func (b Box) Intersect(o Box) Box {
	var r Box
	for a := 0; a < 3; a++ {
		r.Min[a] = max(b.Min[a], o.Min[a])
		r.Max[a] = max(min(b.Max[a], o.Max[a]), r.Min[a])
	}
	return r
}

// Union returns the smallest box holding both boxes.
func (b Box) Union(o Box) Box {
	var r Box
	for a := 0; a < 3; a++ {
		r.Min[a] = min(b.Min[a], o.Min[a])
		r.Max[a] = max(b.Max[a], o.Max[a])
	}
	return r
}

// Clip restricts the box to [0, shape).
func (b Box) Clip(shape Shape) Box {
	return b.Intersect(shape.Full())
}

// Extend grows the box so that it covers voxel (z, y, x).
func (b *Box) Extend(z, y, x int) {
	c := [3]int{z, y, x}
	for a := 0; a < 3; a++ {
		if c[a] < b.Min[a] {
			b.Min[a] = c[a]
		}
		if c[a]+1 > b.Max[a] {
			b.Max[a] = c[a] + 1
		}
	}
}

// VoxelBox is the tight box around a single voxel.
func VoxelBox(z, y, x int) Box {
	return Box{Min: [3]int{z, y, x}, Max: [3]int{z + 1, y + 1, x + 1}}
}
