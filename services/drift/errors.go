// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package drift

import "errors"

var (
	// ErrDocNotFound is returned when a named document does not exist.
	ErrDocNotFound = errors.New("document not found")

	// ErrDocExists is returned when creating a document under a name
	// already in use.
	ErrDocExists = errors.New("document already exists")

	// ErrUnknownKind is returned for a document kind outside the
	// supported set.
	ErrUnknownKind = errors.New("unknown document kind")

	// ErrKindMismatch is returned when a remote snapshot's kind differs
	// from the local document's kind.
	ErrKindMismatch = errors.New("snapshot kind mismatch")

	// ErrInvalidOp is returned for an operation the document's kind
	// does not support or that is missing required fields.
	ErrInvalidOp = errors.New("invalid operation")

	// ErrInvalidDocName is returned for document names that cannot be
	// used as storage keys or sync filenames.
	ErrInvalidDocName = errors.New("invalid document name")
)
