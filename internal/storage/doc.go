/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists storyboard documents.
// The canonical state is one JSON manifest (storyboard.json) written transactionally,
// with a timestamped backup of the previous version and JSON schema validation.
// A per-document SQLite database at <root>/.gsb/index.sqlite holds the operation
// journal (pre-operation snapshots used by restore) and a full-text index of
// annotation text. The search tables are derived from the manifest and can be
// rebuilt at any time; the journal is not.
package storage
