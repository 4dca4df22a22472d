// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"context"
	"io"
	"time"

	"github.com/infinite-iroha/davcore/dav/props"
)

// Resource is the metadata view of a backend entity the core needs to
// drive dispatch, preconditions, and response headers, per spec.md §3.
type Resource struct {
	Path         string
	IsCollection bool
	Exists       bool
	ETag         ETag
	HasETag      bool
	LastModified time.Time
	HasModified  bool
	Length       int64
	HasLength    bool
	ContentType  string
}

// CopyResult reports a partial or total outcome of a recursive COPY/MOVE
// over a collection tree, per spec.md §4.6.
type CopyResult struct {
	// Failures maps a source-relative path that could not be copied (or
	// moved) to the condition that explains why, for multi-status
	// reporting. An empty map means every member succeeded.
	Failures map[string]Condition
}

// ResourceBackend is the storage/backing-model collaborator the core
// consumes, per spec.md §6. Implementations live outside the core;
// dav/memfs and dav/osfs are reference implementations.
type ResourceBackend interface {
	// Resolve returns the Resource named by path, or Resource{Exists:
	// false} if nothing lives there (not an error).
	Resolve(ctx context.Context, path string) (Resource, error)
	// Canonicalize normalizes path to this backend's stable form (case
	// folding, trailing-slash rules) without touching storage.
	Canonicalize(ctx context.Context, path string) string
	// AllowedMethods lists the HTTP methods valid for resource, for the
	// Allow/OPTIONS response.
	AllowedMethods(ctx context.Context, r Resource) []string
	// Read opens resource's entity body for GET.
	Read(ctx context.Context, r Resource) (io.ReadCloser, error)
	// Write stores body as resource's new entity, creating it if absent.
	// created reports whether this call created a new resource (PUT's
	// 201 vs. 204 distinction).
	Write(ctx context.Context, path string, body io.Reader) (created bool, err error)
	// MakeCollection creates an empty collection at path.
	MakeCollection(ctx context.Context, path string) error
	// Delete removes resource (recursively, if a collection).
	Delete(ctx context.Context, r Resource) error
	// Copy copies the tree rooted at src to destPath. overwrite permits
	// replacing an existing destination. zeroDepth copies only src
	// itself (a collection copied this way is created empty).
	Copy(ctx context.Context, src Resource, destPath string, zeroDepth, overwrite bool) (CopyResult, error)
	// Move relocates the tree rooted at src to destPath.
	Move(ctx context.Context, src Resource, destPath string, overwrite bool) (CopyResult, error)
	// ListChildren enumerates the immediate children of a collection.
	ListChildren(ctx context.Context, r Resource) ([]Resource, error)
	// LiveProperties exposes this backend as a props.LiveProvider for
	// the property engine (DAV:getcontentlength, DAV:resourcetype, ...).
	LiveProperties() props.LiveProvider
}

// LockStore is the optional durability hook a persistent lock manager
// calls into, per spec.md §6. The in-memory dav/locks.Manager does not
// require one; a durable deployment supplies it to survive restarts.
type LockStore interface {
	LoadAll(ctx context.Context) ([]StoredLock, error)
	OnAdded(ctx context.Context, lock StoredLock)
	OnRefreshed(ctx context.Context, lock StoredLock)
	OnRemoved(ctx context.Context, token string)
}

// StoredLock is the durable projection of a dav/locks.Info record.
type StoredLock struct {
	Token     string
	Root      string
	Exclusive bool
	ZeroDepth bool
	OwnerXML  string
	Expires   time.Time
	Infinite  bool
}

// PropertyStore is the dead-property persistence contract, re-exported
// at the dav root for callers that only import the core, per spec.md
// §6. It is satisfied by props.Store.
type PropertyStore = props.Store

// AuthorizationFilter decides whether principal may perform method on
// resource, per spec.md §6. The core treats authentication (identity
// establishment) as already done by the transport; this filter only
// authorizes.
type AuthorizationFilter interface {
	Authorize(ctx context.Context, principal string, r Resource, method string) Authorization
}

// Authorization is the result an AuthorizationFilter returns.
type Authorization int

const (
	// Allow permits the request to proceed.
	Allow Authorization = iota
	// Deny rejects with 403 Forbidden.
	Deny
	// DenyAs404 rejects with 404 Not Found, hiding the resource's
	// existence from an unauthorized caller.
	DenyAs404
)
