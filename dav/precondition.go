// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"net/url"
	"time"

	"github.com/infinite-iroha/davcore/dav/ifheader"
)

// Outcome is the result of evaluating a request's preconditions.
type Outcome int

const (
	Pass Outcome = iota
	NotModified
	PreconditionFailed
)

// ResourceState is the subset of resource metadata the precondition
// evaluator needs: whether it exists, its current entity tag (if any),
// and its last-modified instant (if any).
type ResourceState struct {
	Exists       bool
	ETag         ETag
	HasETag      bool
	LastModified time.Time
	HasModified  bool
}

// LockCoverage answers whether a token names an active lock covering
// a given resource path, per spec.md §4.3. dav/locks.Manager implements
// this (indirectly, via a thin adapter in the dispatcher) without this
// package importing dav/locks, keeping the dependency direction
// locks-below-dav.
type LockCoverage interface {
	CoversWithToken(token, path string) bool
}

// PreconditionRequest carries every conditional header/value relevant
// to one request.
type PreconditionRequest struct {
	Method string
	Path   string // the request-URI's path, used to resolve an untagged If header

	IfMatch     ETagList
	HasIfMatch  bool
	IfNoneMatch ETagList
	HasIfNoneMatch bool

	IfUnmodifiedSince time.Time
	HasIfUnmodified   bool
	IfModifiedSince   time.Time
	HasIfModified     bool

	IfHeader    ifheader.Header
	HasIfHeader bool
}

// EvaluatePreconditions implements spec.md §4.2's six-step evaluation
// order. Grounded on RFC 7232's precedence plus
// _examples/google-go-webdav/cond.go's tagged-list DNF shape, generalized
// to the full RFC 7232 steps the teacher left to its caller.
func EvaluatePreconditions(state ResourceState, locks LockCoverage, req *PreconditionRequest) (Outcome, ETag) {
	// Step 1 & 2: If-Match.
	if req.HasIfMatch {
		if !state.Exists {
			return PreconditionFailed, ETag{}
		}
		if !(req.IfMatch.Any || (state.HasETag && req.IfMatch.MatchesStrong(state.ETag))) {
			return PreconditionFailed, ETag{}
		}
	}

	// Step 3: If-Unmodified-Since.
	if req.HasIfUnmodified && state.HasModified && state.LastModified.After(req.IfUnmodifiedSince) {
		return PreconditionFailed, ETag{}
	}

	// Step 4: If-None-Match.
	if req.HasIfNoneMatch && state.Exists {
		matched := req.IfNoneMatch.Any || (state.HasETag && req.IfNoneMatch.MatchesWeak(state.ETag))
		if matched {
			if req.Method == "GET" || req.Method == "HEAD" {
				return NotModified, state.ETag
			}
			return PreconditionFailed, ETag{}
		}
	}

	// Step 5: If-Modified-Since.
	if req.HasIfModified && (req.Method == "GET" || req.Method == "HEAD") && state.HasModified {
		if !state.LastModified.After(req.IfModifiedSince) {
			return NotModified, state.ETag
		}
	}

	// Step 6: WebDAV If header.
	if req.HasIfHeader {
		if !evaluateIfHeader(req.IfHeader, req.Path, state, locks) {
			return PreconditionFailed, ETag{}
		}
	}

	return Pass, ETag{}
}

func evaluateIfHeader(h ifheader.Header, requestPath string, state ResourceState, locks LockCoverage) bool {
	for _, tagged := range h.Lists {
		resource := tagged.Resource
		if resource == "" {
			resource = requestPath
		} else if p := resourcePath(resource); p != requestPath {
			continue
		} else {
			resource = p
		}
		for _, cl := range tagged.Lists {
			if evaluateConditionList(cl, resource, state, locks) {
				return true
			}
		}
	}
	return false
}

// resourcePath normalizes a tagged If header's resource tag (an absolute
// URI per RFC 4918 §10.4, e.g. "http://host/path") down to its path
// component so it can be compared against the bare request path, the
// same normalization _examples/google-go-webdav/cond/cond.go's
// IfTag.RewriteHosts performs via url.Parse(l.Resource).Path. Falls back
// to the raw tag text if it fails to parse as a URL or carries no path.
func resourcePath(resource string) string {
	u, err := url.Parse(resource)
	if err != nil || u.Path == "" {
		return resource
	}
	return u.Path
}

func evaluateConditionList(cl ifheader.ConditionList, resource string, state ResourceState, locks LockCoverage) bool {
	for _, c := range cl.Conditions {
		if !evaluateCondition(c, resource, state, locks) {
			return false
		}
	}
	return true
}

func evaluateCondition(c ifheader.Condition, resource string, state ResourceState, locks LockCoverage) bool {
	var ok bool
	switch c.Kind {
	case ifheader.KindLockToken:
		ok = locks != nil && locks.CoversWithToken(c.Token, resource)
	case ifheader.KindEntityTag:
		tag, err := ParseETag(c.ETag)
		ok = err == nil && state.HasETag && tag.StrongEqual(state.ETag)
	}
	if c.Negated {
		return !ok
	}
	return ok
}
