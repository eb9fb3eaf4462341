/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

// Basic 3D vectors and plane-aligned rectangles for storyboard sheets.
// The drawing plane is X (horizontal) by Z (vertical, up); Y is depth.

import (
	"math"
	"sort"
)

// Epsilon is the tolerance used by containment tests to absorb floating jitter.
const Epsilon = 1e-6

// Vec3 is a point or offset in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len() float64         { return math.Sqrt(a.Dot(a)) }

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// ApproxEqual compares component-wise within eps.
func (a Vec3) ApproxEqual(b Vec3, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

// Rect is an axis-aligned box; containment only looks at the X/Z plane.
type Rect struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// RectXZ builds a rectangle on the drawing plane (Y = 0).
func RectXZ(minX, minZ, maxX, maxZ float64) Rect {
	return Rect{Min: Vec3{X: minX, Z: minZ}, Max: Vec3{X: maxX, Z: maxZ}}
}

// RectCentered builds a w×h rectangle around c.
func RectCentered(c Vec3, w, h float64) Rect {
	return Rect{
		Min: Vec3{X: c.X - w/2, Y: c.Y, Z: c.Z - h/2},
		Max: Vec3{X: c.X + w/2, Y: c.Y, Z: c.Z + h/2},
	}
}

// RectFromPoints sorts each axis independently and returns the bounding box.
// It reports false for an empty input.
func RectFromPoints(pts []Vec3) (Rect, bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	zs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	sort.Float64s(xs)
	sort.Float64s(ys)
	sort.Float64s(zs)
	n := len(pts) - 1
	return Rect{Min: Vec3{xs[0], ys[0], zs[0]}, Max: Vec3{xs[n], ys[n], zs[n]}}, true
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Z - r.Min.Z }

func (r Rect) Center() Vec3 {
	return Vec3{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2, Z: (r.Min.Z + r.Max.Z) / 2}
}

// Contains reports whether p lies inside r on the drawing plane, edges included, grown by eps.
func (r Rect) Contains(p Vec3, eps float64) bool {
	return p.X >= r.Min.X-eps && p.X <= r.Max.X+eps && p.Z >= r.Min.Z-eps && p.Z <= r.Max.Z+eps
}

// Overlaps reports whether the interiors of r and o intersect by more than eps.
// Rectangles sharing only an edge do not overlap.
func (r Rect) Overlaps(o Rect, eps float64) bool {
	return r.Min.X < o.Max.X-eps && o.Min.X < r.Max.X-eps && r.Min.Z < o.Max.Z-eps && o.Min.Z < r.Max.Z-eps
}

// Translate returns r moved by d.
func (r Rect) Translate(d Vec3) Rect { return Rect{Min: r.Min.Add(d), Max: r.Max.Add(d)} }

// Inset shrinks r by dx horizontally and dz vertically on all sides (negative grows).
func (r Rect) Inset(dx, dz float64) Rect {
	return Rect{
		Min: Vec3{X: r.Min.X + dx, Y: r.Min.Y, Z: r.Min.Z + dz},
		Max: Vec3{X: r.Max.X - dx, Y: r.Max.Y, Z: r.Max.Z - dz},
	}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Min: Vec3{math.Min(r.Min.X, o.Min.X), math.Min(r.Min.Y, o.Min.Y), math.Min(r.Min.Z, o.Min.Z)},
		Max: Vec3{math.Max(r.Max.X, o.Max.X), math.Max(r.Max.Y, o.Max.Y), math.Max(r.Max.Z, o.Max.Z)},
	}
}

// Corners returns the four plane corners clockwise from top-left.
func (r Rect) Corners() [4]Vec3 {
	y := r.Min.Y
	return [4]Vec3{
		{X: r.Min.X, Y: y, Z: r.Max.Z},
		{X: r.Max.X, Y: y, Z: r.Max.Z},
		{X: r.Max.X, Y: y, Z: r.Min.Z},
		{X: r.Min.X, Y: y, Z: r.Min.Z},
	}
}

// KeyPoints returns min corner, max corner and center.
func (r Rect) KeyPoints() [3]Vec3 { return [3]Vec3{r.Min, r.Max, r.Center()} }

// Round rounds v to n decimal places deterministically.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
