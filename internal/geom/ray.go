/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

import "math"

// Ray is a half-line used for picking panels in a viewport.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// Plane is defined by a point and a normal.
type Plane struct {
	Point  Vec3
	Normal Vec3
}

// PlaneFromPoints builds a plane through a, b, c. It reports false for collinear input.
func PlaneFromPoints(a, b, c Vec3) (Plane, bool) {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Len()
	if l < Epsilon {
		return Plane{}, false
	}
	return Plane{Point: a, Normal: n.Scale(1 / l)}, true
}

// Intersect returns the hit point and ray parameter t. Rays parallel to the
// plane or pointing away from it miss.
func (p Plane) Intersect(r Ray) (Vec3, float64, bool) {
	denom := p.Normal.Dot(r.Dir)
	if math.Abs(denom) < Epsilon {
		return Vec3{}, 0, false
	}
	t := p.Point.Sub(r.Origin).Dot(p.Normal) / denom
	if t < 0 {
		return Vec3{}, 0, false
	}
	return r.Origin.Add(r.Dir.Scale(t)), t, true
}
