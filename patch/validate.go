// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// checkSyntax re-parses a patched Python file and returns one warning per
// syntax error found. Non-Python files and parser failures yield no
// warnings; this is advisory only.
func checkSyntax(filePath, content string) []string {
	if !strings.HasSuffix(filePath, ".py") {
		return nil
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return nil
	}
	defer tree.Close()

	var warnings []string
	collectSyntaxWarnings(tree.RootNode(), &warnings)
	return warnings
}

func collectSyntaxWarnings(node *sitter.Node, warnings *[]string) {
	if node == nil || len(*warnings) >= 10 {
		return
	}
	if node.IsError() || node.IsMissing() {
		line := node.StartPoint().Row + 1
		col := node.StartPoint().Column + 1
		*warnings = append(*warnings,
			fmt.Sprintf("syntax error after patch at line %d, column %d", line, col))
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxWarnings(node.Child(i), warnings)
	}
}
