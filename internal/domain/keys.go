/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind names a family of generated entities.
type Kind string

const (
	KindFrame       Kind = "frame"
	KindSeparator   Kind = "separator"  // vertical divider between drawing and notes
	KindNotesRule   Kind = "notes_rule" // rule under the notes header
	KindPanelHeader Kind = "panel_header"
	KindPanelNotes  Kind = "panel_notes"
	KindPageHeader  Kind = "page_header"
	KindPageFooter  Kind = "page_footer"
	KindLogo        Kind = "logo"
	KindCamera      Kind = "camera"
	KindMarker      Kind = "marker"
)

// Key identifies a generated entity structurally. Page and Panel are 0-based;
// Panel is -1 for page-level entities. The rendered Name is persisted and is
// what find-or-create lookups match on, so its format must stay stable.
type Key struct {
	Kind  Kind
	Page  int
	Panel int
}

// PageKey returns the key of a page-level entity.
func PageKey(kind Kind, page int) Key { return Key{Kind: kind, Page: page, Panel: -1} }

// PanelKey returns the key of a panel-level entity.
func PanelKey(kind Kind, page, panel int) Key { return Key{Kind: kind, Page: page, Panel: panel} }

// IsPanel reports whether the key addresses a panel.
func (k Key) IsPanel() bool { return k.Panel >= 0 }

// Name renders the key as kind_pPPP or kind_pPPP_NNN with 1-based numbers.
func (k Key) Name() string {
	if k.Panel < 0 {
		return fmt.Sprintf("%s_p%03d", k.Kind, k.Page+1)
	}
	return fmt.Sprintf("%s_p%03d_%03d", k.Kind, k.Page+1, k.Panel+1)
}

func (k Key) String() string { return k.Name() }

var keyPattern = regexp.MustCompile(`^([a-z]+(?:_[a-z]+)*)_p(\d{3,})(?:_(\d{3,}))?$`)

// ParseKey recovers a key from a generated name.
func ParseKey(name string) (Key, bool) {
	m := keyPattern.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	page, err := strconv.Atoi(m[2])
	if err != nil || page < 1 {
		return Key{}, false
	}
	k := Key{Kind: Kind(m[1]), Page: page - 1, Panel: -1}
	if m[3] != "" {
		panel, err := strconv.Atoi(m[3])
		if err != nil || panel < 1 {
			return Key{}, false
		}
		k.Panel = panel - 1
	}
	return k, true
}
