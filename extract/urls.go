// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/ast"
)

// extractURLPatterns emits the urlpatterns container plus one url_pattern
// child per routing-helper call inside it.
func (e *Extractor) extractURLPatterns(relPath string, mod *ast.Module, r *Resolver) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i := range mod.Assignments {
		assign := &mod.Assignments[i]
		if assign.Target != "urlpatterns" || assign.Kind != ast.ValueList {
			continue
		}

		container := artifact.New(artifact.KindGeneric, "urlpatterns", relPath, anchorOf(assign.Location), artifact.ConfidenceCertain)
		container.Evidence = []string{"urlpatterns list assignment"}
		container.Meta.Extra = map[string]string{
			"construct": "urlpatterns",
			"entries":   strconv.Itoa(len(assign.Calls)),
		}
		out = append(out, container)

		for j := range assign.Calls {
			call := &assign.Calls[j]
			if a := urlPatternArtifact(relPath, call, r); a != nil {
				out = append(out, a)
			}
		}
	}
	return out
}

// urlPatternArtifact classifies one entry of a urlpatterns list. Entries
// that are not routing-helper calls are skipped.
func urlPatternArtifact(relPath string, call *ast.Call, r *Resolver) *artifact.Artifact {
	canonical := r.Resolve(call.Func)
	conf := artifact.ConfidenceCertain
	if !routingFuncs[canonical] {
		if !routingFuncNames[lastSegment(call.Func)] {
			return nil
		}
		conf = artifact.ConfidenceProbable
	}

	meta := &artifact.URLPatternMeta{}
	pos := call.Positional()
	if len(pos) > 0 {
		meta.Route = pos[0]
	}
	if len(pos) > 1 {
		meta.Target, meta.IsInclude = routeTarget(pos[1])
	}
	if name, ok := call.Kwarg("name"); ok {
		meta.RouteName = name
	}
	if lastSegment(call.Func) == "include" {
		// include("app.urls") at the top level of the list.
		meta.IsInclude = true
		if len(pos) > 0 {
			meta.Target, meta.Route = stripQuotes(pos[0]), ""
		}
	}

	name := meta.RouteName
	if name == "" {
		name = meta.Route
	}
	if name == "" {
		name = meta.Target
	}
	if name == "" {
		name = "pattern"
	}

	a := artifact.New(artifact.KindURLPattern, name, relPath, anchorOf(call.Location), conf)
	a.Evidence = []string{fmt.Sprintf("%s entry in urlpatterns", call.Func)}
	a.Meta.URLPattern = meta
	return a
}

// routeTarget normalizes the second routing argument into a target token:
// include("app.urls") unwraps to the included module, View.as_view() to the
// view class, and plain references pass through.
func routeTarget(raw string) (target string, isInclude bool) {
	if inner, ok := strings.CutPrefix(raw, "include("); ok {
		inner = strings.TrimSuffix(inner, ")")
		return stripQuotes(strings.TrimSpace(inner)), true
	}
	if idx := strings.Index(raw, "("); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSuffix(raw, ".as_view")
	return raw, false
}

// routerCtorNames mark assignments that bind a DRF router variable.
var routerCtorNames = set("DefaultRouter", "SimpleRouter")

// extractRouterRegisters emits router_register artifacts for
// <router>.register(prefix, handler, basename=...) calls. Receivers bound
// by a known router constructor are certain; receivers merely named like a
// router are probable.
func (e *Extractor) extractRouterRegisters(relPath string, mod *ast.Module) []*artifact.Artifact {
	routerVars := make(map[string]bool)
	for i := range mod.Assignments {
		assign := &mod.Assignments[i]
		if assign.Kind == ast.ValueCall && assign.Call != nil && routerCtorNames[lastSegment(assign.Call.Func)] {
			routerVars[assign.Target] = true
		}
	}

	var out []*artifact.Artifact
	for i := range mod.Calls {
		call := &mod.Calls[i]
		recv, method, found := cutLast(call.Func, ".")
		if !found || method != "register" {
			continue
		}

		var conf artifact.Confidence
		switch {
		case routerVars[recv]:
			conf = artifact.ConfidenceCertain
		case strings.Contains(strings.ToLower(recv), "router"):
			conf = artifact.ConfidenceProbable
		default:
			continue
		}

		pos := call.Positional()
		if len(pos) < 2 {
			continue
		}
		meta := &artifact.RouterRegisterMeta{Prefix: pos[0], Handler: pos[1]}
		if basename, ok := call.Kwarg("basename"); ok {
			meta.Basename = basename
		}

		a := artifact.New(artifact.KindRouterRegister, meta.Prefix, relPath, anchorOf(call.Location), conf)
		a.Evidence = []string{fmt.Sprintf("%s.register call", recv)}
		a.Meta.RouterRegister = meta
		out = append(out, a)
	}
	return out
}

// extractAdminRegisters emits admin_register artifacts from both
// admin.site.register(...) calls and @admin.register(Model) decorators.
func (e *Extractor) extractAdminRegisters(relPath string, mod *ast.Module, r *Resolver) []*artifact.Artifact {
	var out []*artifact.Artifact

	for i := range mod.Calls {
		call := &mod.Calls[i]
		if !strings.HasSuffix(call.Func, ".site.register") {
			continue
		}
		pos := call.Positional()
		if len(pos) == 0 {
			continue
		}
		meta := &artifact.AdminRegisterMeta{Model: pos[0]}
		if len(pos) > 1 {
			meta.AdminClass = pos[1]
		}
		a := artifact.New(artifact.KindAdminRegister, meta.Model, relPath, anchorOf(call.Location), artifact.ConfidenceProbable)
		a.Evidence = []string{fmt.Sprintf("%s call", call.Func)}
		a.Meta.AdminRegister = meta
		out = append(out, a)
	}

	for i := range mod.Classes {
		cls := &mod.Classes[i]
		dec, ok := adminRegisterDecorator(cls)
		if !ok {
			continue
		}
		pos := positionalArgs(dec.Args)
		if len(pos) == 0 {
			continue
		}
		a := artifact.New(artifact.KindAdminRegister, pos[0], relPath, anchorOf(cls.Location), artifact.ConfidenceProbable)
		a.Evidence = []string{fmt.Sprintf("@%s decorator on %s", dec.Name, cls.Name)}
		a.Meta.AdminRegister = &artifact.AdminRegisterMeta{
			Model:        pos[0],
			AdminClass:   cls.Name,
			ViaDecorator: true,
		}
		out = append(out, a)
	}
	return out
}

func adminRegisterDecorator(cls *ast.Class) (*ast.Decorator, bool) {
	for i := range cls.Decorators {
		if strings.HasSuffix(cls.Decorators[i].Name, "admin.register") {
			return &cls.Decorators[i], true
		}
	}
	return nil, false
}

func hasAdminRegisterDecorator(cls *ast.Class) bool {
	_, ok := adminRegisterDecorator(cls)
	return ok
}

func positionalArgs(args []ast.CallArg) []string {
	var out []string
	for _, a := range args {
		if a.Name == "" {
			out = append(out, a.Value)
		}
	}
	return out
}

// cutLast splits s at the last occurrence of sep.
func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}
