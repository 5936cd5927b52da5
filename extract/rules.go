// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"fmt"

	"github.com/substratelabs/atlas/artifact"
)

// classRule classifies a class by its base tokens. Exact entries match the
// import-resolved qualified name and yield certain confidence; bare entries
// match the unresolved trailing class name and yield heuristic confidence.
//
// Rule order matters: viewsets are checked before API views so that a
// "...ViewSet" base never falls through to the broader view-name set.
type classRule struct {
	kind  artifact.Kind
	exact map[string]bool
	bare  map[string]bool
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var classRules = []classRule{
	{
		kind: artifact.KindViewSet,
		exact: set(
			"rest_framework.viewsets.ViewSet",
			"rest_framework.viewsets.GenericViewSet",
			"rest_framework.viewsets.ModelViewSet",
			"rest_framework.viewsets.ReadOnlyModelViewSet",
		),
		bare: set("ViewSet", "GenericViewSet", "ModelViewSet", "ReadOnlyModelViewSet"),
	},
	{
		kind: artifact.KindAPIView,
		exact: set(
			"rest_framework.views.APIView",
			"rest_framework.generics.GenericAPIView",
			"rest_framework.generics.ListAPIView",
			"rest_framework.generics.CreateAPIView",
			"rest_framework.generics.RetrieveAPIView",
			"rest_framework.generics.UpdateAPIView",
			"rest_framework.generics.DestroyAPIView",
			"rest_framework.generics.ListCreateAPIView",
			"rest_framework.generics.RetrieveUpdateAPIView",
			"rest_framework.generics.RetrieveDestroyAPIView",
			"rest_framework.generics.RetrieveUpdateDestroyAPIView",
			"django.views.View",
			"django.views.generic.View",
			"django.views.generic.TemplateView",
			"django.views.generic.ListView",
			"django.views.generic.DetailView",
		),
		bare: set(
			"APIView", "GenericAPIView", "ListAPIView", "CreateAPIView",
			"RetrieveAPIView", "UpdateAPIView", "DestroyAPIView",
			"ListCreateAPIView", "RetrieveUpdateAPIView", "RetrieveDestroyAPIView",
			"RetrieveUpdateDestroyAPIView", "TemplateView", "ListView", "DetailView",
		),
	},
	{
		kind: artifact.KindSerializer,
		exact: set(
			"rest_framework.serializers.Serializer",
			"rest_framework.serializers.ModelSerializer",
			"rest_framework.serializers.HyperlinkedModelSerializer",
			"rest_framework.serializers.ListSerializer",
		),
		bare: set("Serializer", "ModelSerializer", "HyperlinkedModelSerializer", "ListSerializer"),
	},
	{
		kind: artifact.KindModel,
		exact: set(
			"django.db.models.Model",
			"django.db.models.base.Model",
		),
		bare: set("Model"),
	},
	{
		kind:  artifact.KindAppConfig,
		exact: set("django.apps.AppConfig"),
		bare:  set("AppConfig"),
	},
}

// taskDecorators are the trailing decorator tokens that mark a background
// task. Matched against the last dotted segment so "app.task" and
// "celery.shared_task" both hit.
var taskDecorators = set("shared_task", "task", "periodic_task")

// routingFuncs are the URL-configuration helpers, keyed by qualified name.
var routingFuncs = set(
	"django.urls.path",
	"django.urls.re_path",
	"django.urls.include",
	"django.conf.urls.url",
	"django.conf.urls.include",
)

// routingFuncNames are the bare helper names for unresolved fallback.
var routingFuncNames = set("path", "re_path", "url", "include")

// cacheClientCtors are constructor tokens that instantiate a cache client.
var cacheClientCtors = set(
	"redis.Redis",
	"redis.StrictRedis",
	"redis.asyncio.Redis",
	"memcache.Client",
	"pymemcache.client.base.Client",
)

// cacheClientNames are the bare constructor names for unresolved fallback.
var cacheClientNames = set("Redis", "StrictRedis")

// classification is the outcome of matching a class against the rule table.
type classification struct {
	kind       artifact.Kind
	confidence artifact.Confidence
	evidence   string
}

// classify matches a class's base tokens against the rule table. The first
// rule containing any base wins. ok is false when nothing matched.
func classify(bases []string, r *Resolver) (classification, bool) {
	for _, rule := range classRules {
		for _, base := range bases {
			canonical := r.Resolve(base)
			if rule.exact[canonical] {
				return classification{
					kind:       rule.kind,
					confidence: artifact.ConfidenceCertain,
					evidence:   fmt.Sprintf("base %s resolves to %s", base, canonical),
				}, true
			}
			if rule.bare[lastSegment(canonical)] {
				return classification{
					kind:       rule.kind,
					confidence: artifact.ConfidenceHeuristic,
					evidence:   fmt.Sprintf("base %s matches %s by name only", base, lastSegment(canonical)),
				}, true
			}
		}
	}
	return classification{}, false
}
