/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package animatic

import (
	"fmt"

	"gostoryboard/internal/domain"
)

// ShiftFromPlayhead moves every marker after the current frame by delta
// frames and returns how many moved. A negative delta may not push a marker
// onto or before the playhead.
func ShiftFromPlayhead(scene *domain.Scene, delta int) (int, error) {
	var after []*domain.Marker
	for _, m := range scene.Markers {
		if m.Frame > scene.FrameCurrent {
			after = append(after, m)
			if m.Frame+delta <= scene.FrameCurrent {
				return 0, fmt.Errorf("%w: shifting %s by %d passes the playhead at %d",
					domain.ErrValidation, m.Name, delta, scene.FrameCurrent)
			}
		}
	}
	for _, m := range after {
		m.Frame += delta
	}
	if len(after) > 0 && scene.FrameEnd > scene.FrameCurrent {
		scene.FrameEnd += delta
		if scene.FrameEnd < scene.FrameCurrent {
			scene.FrameEnd = scene.FrameCurrent
		}
	}
	return len(after), nil
}

// Dilate inserts one frame of gap between every consecutive marker pair.
func Dilate(scene *domain.Scene) {
	ms := scene.SortedMarkers()
	for j, m := range ms {
		m.Frame += j
	}
	if len(ms) > 1 {
		scene.FrameEnd += len(ms) - 1
	}
}

// Compress removes one frame of gap between every consecutive marker pair.
// Unless force is set it refuses when any gap is already one frame or less,
// since two markers would then share a frame.
func Compress(scene *domain.Scene, force bool) error {
	ms := scene.SortedMarkers()
	if !force {
		for j := 1; j < len(ms); j++ {
			if gap := ms[j].Frame - ms[j-1].Frame; gap <= 1 {
				return fmt.Errorf("%w: %s and %s are %d frame(s) apart", domain.ErrValidation, ms[j-1].Name, ms[j].Name, gap)
			}
		}
	}
	for j, m := range ms {
		m.Frame -= j
	}
	if len(ms) > 1 {
		scene.FrameEnd -= len(ms) - 1
		if scene.FrameEnd < scene.FrameStart {
			scene.FrameEnd = scene.FrameStart
		}
	}
	return nil
}
