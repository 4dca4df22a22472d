// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.

// Package davpath implements the canonical-path algebra the WebDAV core
// needs: cleaning, subtree membership, and depth-bounded coverage tests.
// Paths are always compared as byte sequences, per spec.md's data model.
package davpath

import (
	"net/url"
	gopath "path"
	"strings"
)

// Clean returns the canonical form of p: always rooted at "/", with ".."
// and "." segments resolved, and a collection's trailing slash preserved.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	trailingSlash := strings.HasSuffix(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := gopath.Clean(p)
	if trailingSlash && cleaned != "/" && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// IsCollection reports whether p is in collection form (ends in "/").
// The root path is always a collection.
func IsCollection(p string) bool {
	return p == "/" || strings.HasSuffix(p, "/")
}

// WithoutTrailingSlash strips a single trailing "/" from p, unless p is
// the root. Two paths differing only by a trailing slash name the same
// resource (spec.md §3); this normalizes for map-keyed comparisons.
func WithoutTrailingSlash(p string) string {
	if p != "/" && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}

// InTree reports whether path lies within subtree (or is subtree itself).
func InTree(path, subtree string) bool {
	subtree = WithoutTrailingSlash(subtree)
	path = WithoutTrailingSlash(path)
	if path == subtree {
		return true
	}
	return strings.HasPrefix(path, subtree+"/")
}

// Included determines whether name lies within subtree subject to a
// depth restriction (-1 means infinite depth, 0 means subtree itself
// only, N means at most N path segments below subtree). If included, it
// also returns name's path relative to subtree ("" if name == subtree).
func Included(name, subtree string, depth int) (relative string, ok bool) {
	name = WithoutTrailingSlash(name)
	subtree = WithoutTrailingSlash(subtree)
	if name == subtree {
		return "", true
	}
	if !InTree(name, subtree) {
		return "", false
	}
	rel := gopath.Clean(name[len(subtree):])
	rel = strings.TrimPrefix(rel, "/")
	if depth >= 0 {
		segments := len(strings.Split(rel, "/"))
		if segments > depth {
			return "", false
		}
	}
	return rel, true
}

// URLEncode percent-encodes p so it is safe to place in an href.
func URLEncode(p string) string {
	u := url.URL{Path: p}
	return u.EscapedPath()
}

// Join joins a parent collection path and a child name, returning a
// clean absolute path.
func Join(parent, name string) string {
	return Clean(gopath.Join(WithoutTrailingSlash(parent), name))
}

// Parent returns p's parent collection path ("/" for top-level resources
// and for the root itself).
func Parent(p string) string {
	p = WithoutTrailingSlash(p)
	if p == "" || p == "/" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx+1]
}

// Base returns the final path segment of p (the file or directory name).
func Base(p string) string {
	p = WithoutTrailingSlash(p)
	if p == "" || p == "/" {
		return "/"
	}
	return gopath.Base(p)
}
