// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import "errors"

var (
	// ErrFileTooLarge is returned when input exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned for input that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid file content")
)
