// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"path"
	"strings"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/ast"
)

// trackedSettings are the settings-module names recorded as artifacts.
var trackedSettings = set(
	"INSTALLED_APPS", "MIDDLEWARE", "DATABASES", "CACHES", "TEMPLATES",
	"REST_FRAMEWORK", "ALLOWED_HOSTS", "ROOT_URLCONF", "DEBUG", "SECRET_KEY",
	"STATIC_URL", "MEDIA_URL", "AUTH_USER_MODEL", "DEFAULT_AUTO_FIELD",
	"TIME_ZONE", "LANGUAGE_CODE", "DATABASE_ROUTERS",
	"AUTHENTICATION_BACKENDS", "LOGGING", "EMAIL_BACKEND", "WSGI_APPLICATION",
	"ASGI_APPLICATION",
)

// trackedSettingPrefixes extend the tracked set by name prefix.
var trackedSettingPrefixes = []string{"CELERY"}

// isSettingsFile reports whether relPath looks like a Django settings
// module: the filename contains "settings", or the file sits inside a
// settings/ package.
func isSettingsFile(relPath string) bool {
	base := path.Base(relPath)
	if !strings.HasSuffix(base, ".py") {
		return false
	}
	if strings.Contains(base, "settings") {
		return true
	}
	return strings.Contains(relPath, "/settings/") || strings.HasPrefix(relPath, "settings/")
}

func isTrackedSetting(name string) bool {
	if trackedSettings[name] {
		return true
	}
	for _, prefix := range trackedSettingPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// extractSettings emits settings_entry artifacts for tracked module-level
// assignments in a settings file.
func extractSettings(relPath string, mod *ast.Module) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i := range mod.Assignments {
		assign := &mod.Assignments[i]
		if !isTrackedSetting(assign.Target) {
			continue
		}

		meta := &artifact.SettingMeta{}
		switch assign.Kind {
		case ast.ValueList:
			meta.ValueKind = "list"
			meta.Items = assign.ListItems
		case ast.ValueDict:
			meta.ValueKind = "dict"
			meta.Items = assign.DictKeys
		default:
			meta.ValueKind = "scalar"
			meta.Scalar = stripQuotes(assign.ValueText)
		}

		a := artifact.New(artifact.KindSettingsEntry, assign.Target, relPath, anchorOf(assign.Location), artifact.ConfidenceCertain)
		a.Evidence = []string{"tracked settings assignment"}
		a.Meta.Setting = meta
		out = append(out, a)
	}
	return out
}

// isRequirementsFile matches requirements.txt and its variants
// (requirements-dev.txt, requirements_test.txt, ...).
func isRequirementsFile(base string) bool {
	return strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt")
}

// requirementName cuts a requirement line down to the package name.
func requirementName(line string) string {
	if idx := strings.IndexAny(line, " <>=!~;["); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// extractRequirements scans a requirements file line by line. No AST is
// involved: comments, blank lines, and pip options are skipped.
func extractRequirements(relPath string, content []byte) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "-") {
			continue
		}
		name := requirementName(trimmed)
		if name == "" {
			continue
		}
		lineNo := i + 1
		anchor := artifact.Anchor{StartLine: lineNo, StartCol: 1, EndLine: lineNo, EndCol: len(line)}
		a := artifact.New(artifact.KindRequirement, name, relPath, anchor, artifact.ConfidenceCertain)
		a.Evidence = []string{"requirements line"}
		a.Meta.Requirement = &artifact.RequirementMeta{Spec: trimmed}
		out = append(out, a)
	}
	return out
}
