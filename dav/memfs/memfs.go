// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memfs is an in-memory dav.ResourceBackend, intended for tests
// and small deployments — it has no limit on memory consumed for file
// content. Grounded on
// _examples/google-go-webdav/memfs/memfs.go's flat map[path]*node tree
// (rather than a linked parent/child node graph), generalized to also
// satisfy props.Store and props.LiveProvider.
package memfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/WJQSERVER-STUDIO/go-utils/iox"

	"github.com/infinite-iroha/davcore/dav"
	"github.com/infinite-iroha/davcore/dav/davpath"
	"github.com/infinite-iroha/davcore/dav/locks"
	"github.com/infinite-iroha/davcore/dav/props"
)

var (
	ErrNotFound     = errors.New("memfs: not found")
	ErrExists       = errors.New("memfs: already exists")
	ErrMissingParent = errors.New("memfs: missing parent collection")
	ErrNotCollection = errors.New("memfs: not a collection")
	ErrIsCollection  = errors.New("memfs: is a collection")
)

type node struct {
	path         string
	isCollection bool
	content      []byte
	contentType  string
	modTime      time.Time
	deadProps    map[props.QName]props.Value
}

func (n *node) etag() dav.ETag {
	sum := sha256.Sum256(n.content)
	return dav.ETag{Value: hex.EncodeToString(sum[:8])}
}

// FS is an in-memory resource tree.
type FS struct {
	mu    sync.Mutex
	nodes map[string]*node

	locks *locks.Manager
}

// New returns an empty FS with just the root collection.
func New() *FS {
	fs := &FS{nodes: make(map[string]*node)}
	fs.nodes["/"] = &node{path: "/", isCollection: true, modTime: time.Now().UTC()}
	return fs
}

// SetLocks wires a lock manager into the backend so its live-property
// provider can report DAV:lockdiscovery/DAV:supportedlock, per spec.md
// §3. Optional — an FS with no manager set reports both as unlocked.
func (fs *FS) SetLocks(m *locks.Manager) { fs.locks = m }

func (fs *FS) lookup(p string) *node {
	return fs.nodes[davpath.Clean(p)]
}

func (fs *FS) parentOf(p string) *node {
	return fs.nodes[davpath.Parent(davpath.Clean(p))]
}

// Resolve implements dav.ResourceBackend.
func (fs *FS) Resolve(ctx context.Context, p string) (dav.Resource, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(p)
	if n == nil {
		return dav.Resource{Path: davpath.Clean(p), Exists: false}, nil
	}
	return fs.toResource(n), nil
}

func (fs *FS) toResource(n *node) dav.Resource {
	r := dav.Resource{
		Path:         n.path,
		IsCollection: n.isCollection,
		Exists:       true,
		ContentType:  n.contentType,
	}
	if !n.isCollection {
		r.ETag = n.etag()
		r.HasETag = true
		r.Length = int64(len(n.content))
		r.HasLength = true
	}
	r.LastModified = n.modTime
	r.HasModified = true
	return r
}

// Canonicalize implements dav.ResourceBackend.
func (fs *FS) Canonicalize(ctx context.Context, p string) string {
	return davpath.Clean(p)
}

// AllowedMethods implements dav.ResourceBackend.
func (fs *FS) AllowedMethods(ctx context.Context, r dav.Resource) []string {
	base := []string{"OPTIONS", "PROPFIND", "LOCK", "UNLOCK"}
	if r.Exists {
		base = append(base, "DELETE", "COPY", "MOVE", "PROPPATCH")
		if r.IsCollection {
			base = append(base, "GET", "HEAD")
		} else {
			base = append(base, "GET", "HEAD", "PUT")
		}
	} else {
		base = append(base, "PUT", "MKCOL")
	}
	return base
}

// Read implements dav.ResourceBackend.
func (fs *FS) Read(ctx context.Context, r dav.Resource) (io.ReadCloser, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(r.Path)
	if n == nil {
		return nil, ErrNotFound
	}
	if n.isCollection {
		return nil, ErrIsCollection
	}
	return io.NopCloser(bytes.NewReader(n.content)), nil
}

// Write implements dav.ResourceBackend.
func (fs *FS) Write(ctx context.Context, p string, body io.Reader) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = davpath.Clean(p)
	if fs.parentOf(p) == nil {
		return false, ErrMissingParent
	}
	data, err := iox.ReadAll(body)
	if err != nil {
		return false, err
	}
	n, existed := fs.nodes[p]
	created := !existed
	if existed && n.isCollection {
		return false, ErrIsCollection
	}
	if !existed {
		n = &node{path: p}
		fs.nodes[p] = n
	}
	n.content = data
	n.modTime = time.Now().UTC()
	return created, nil
}

// MakeCollection implements dav.ResourceBackend.
func (fs *FS) MakeCollection(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = davpath.Clean(p)
	if fs.nodes[p] != nil {
		return ErrExists
	}
	if fs.parentOf(p) == nil {
		return ErrMissingParent
	}
	fs.nodes[p] = &node{path: p, isCollection: true, modTime: time.Now().UTC()}
	return nil
}

// Delete implements dav.ResourceBackend.
func (fs *FS) Delete(ctx context.Context, r dav.Resource) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(r.Path)
	if n == nil {
		return ErrNotFound
	}
	for p := range fs.nodes {
		if p == n.path || davpath.InTree(p, n.path) {
			delete(fs.nodes, p)
		}
	}
	return nil
}

// Copy implements dav.ResourceBackend.
func (fs *FS) Copy(ctx context.Context, src dav.Resource, destPath string, zeroDepth, overwrite bool) (dav.CopyResult, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	destPath = davpath.Clean(destPath)

	srcNode := fs.lookup(src.Path)
	if srcNode == nil {
		return dav.CopyResult{}, ErrNotFound
	}
	if fs.parentOf(destPath) == nil {
		return dav.CopyResult{}, ErrMissingParent
	}
	if existing := fs.nodes[destPath]; existing != nil && !overwrite {
		return dav.CopyResult{}, ErrExists
	}

	result := dav.CopyResult{Failures: make(map[string]dav.Condition)}
	fs.copyNode(srcNode, destPath)
	if !zeroDepth && srcNode.isCollection {
		var children []string
		for p := range fs.nodes {
			if rel, ok := davpath.Included(p, srcNode.path, -1); ok && rel != "" {
				children = append(children, p)
			}
		}
		sort.Strings(children)
		for _, p := range children {
			rel := p[len(srcNode.path):]
			fs.copyNode(fs.nodes[p], davpath.Join(destPath, rel))
		}
	}
	return result, nil
}

func (fs *FS) copyNode(n *node, destPath string) {
	cp := &node{
		path:         destPath,
		isCollection: n.isCollection,
		contentType:  n.contentType,
		modTime:      time.Now().UTC(),
	}
	if !n.isCollection {
		cp.content = append([]byte(nil), n.content...)
	}
	if n.deadProps != nil {
		cp.deadProps = make(map[props.QName]props.Value, len(n.deadProps))
		for k, v := range n.deadProps {
			cp.deadProps[k] = v
		}
	}
	fs.nodes[destPath] = cp
}

// Move implements dav.ResourceBackend.
func (fs *FS) Move(ctx context.Context, src dav.Resource, destPath string, overwrite bool) (dav.CopyResult, error) {
	result, err := fs.Copy(ctx, src, destPath, false, overwrite)
	if err != nil {
		return result, err
	}
	fs.mu.Lock()
	srcPath := davpath.Clean(src.Path)
	for p := range fs.nodes {
		if p == srcPath || davpath.InTree(p, srcPath) {
			delete(fs.nodes, p)
		}
	}
	fs.mu.Unlock()
	return result, nil
}

// ListChildren implements dav.ResourceBackend.
func (fs *FS) ListChildren(ctx context.Context, r dav.Resource) ([]dav.Resource, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(r.Path)
	if n == nil {
		return nil, ErrNotFound
	}
	if !n.isCollection {
		return nil, ErrNotCollection
	}
	var out []dav.Resource
	for p, child := range fs.nodes {
		if rel, ok := davpath.Included(p, n.path, 1); ok && rel != "" {
			out = append(out, fs.toResource(child))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LiveProperties implements dav.ResourceBackend.
func (fs *FS) LiveProperties() props.LiveProvider { return liveProvider{fs} }

// --- props.Store ---

// Get implements props.Store.
func (fs *FS) Get(p string) (map[props.QName]props.Value, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(p)
	if n == nil {
		return nil, ErrNotFound
	}
	out := make(map[props.QName]props.Value, len(n.deadProps))
	for k, v := range n.deadProps {
		out[k] = v
	}
	return out, nil
}

// Patch implements props.Store.
func (fs *FS) Patch(p string, ops []props.PatchOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.lookup(p)
	if n == nil {
		return ErrNotFound
	}
	if n.deadProps == nil {
		n.deadProps = make(map[props.QName]props.Value)
	}
	for _, op := range ops {
		switch op.Op {
		case props.OpSet:
			n.deadProps[op.Name] = op.Value
		case props.OpRemove:
			delete(n.deadProps, op.Name)
		}
	}
	return nil
}

// RemoveAll implements props.Store.
func (fs *FS) RemoveAll(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n := fs.lookup(p); n != nil {
		n.deadProps = nil
	}
	return nil
}

type liveProvider struct{ fs *FS }

func (l liveProvider) LiveNames(p string) ([]props.QName, error) {
	names := []props.QName{
		props.PropGetETag,
		props.PropGetLastModified,
		props.PropResourceType,
		props.PropGetContentLen,
		props.PropGetContentType,
	}
	if l.fs.locks != nil {
		names = append(names, props.PropLockDiscovery, props.PropSupportedLock)
	}
	return names, nil
}

func (l liveProvider) LiveValue(p string, name props.QName) (props.Value, bool, error) {
	l.fs.mu.Lock()
	n := l.fs.lookup(p)
	l.fs.mu.Unlock()
	if n == nil {
		return props.Value{}, false, nil
	}
	switch name {
	case props.PropGetETag:
		if n.isCollection {
			return props.Value{}, false, nil
		}
		return props.NewText(n.etag().String()), true, nil
	case props.PropGetLastModified:
		return props.NewTyped(props.TypedDateTime, dav.FormatHTTPDate(n.modTime)), true, nil
	case props.PropResourceType:
		if n.isCollection {
			return props.Value{Fragment: &props.Fragment{Inner: "<D:collection/>"}}, true, nil
		}
		return props.Value{Fragment: &props.Fragment{}}, true, nil
	case props.PropGetContentLen:
		if n.isCollection {
			return props.Value{}, false, nil
		}
		return props.NewTyped(props.TypedInt, strconv.Itoa(len(n.content))), true, nil
	case props.PropGetContentType:
		if n.isCollection {
			return props.Value{}, false, nil
		}
		ct := n.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return props.NewText(ct), true, nil
	case props.PropLockDiscovery:
		if l.fs.locks == nil {
			return props.Value{}, false, nil
		}
		covering := l.fs.locks.Covering(time.Now().UTC(), p)
		return props.Value{Fragment: &props.Fragment{Inner: dav.RenderLockDiscovery(covering)}}, true, nil
	case props.PropSupportedLock:
		if l.fs.locks == nil {
			return props.Value{}, false, nil
		}
		return props.Value{Fragment: &props.Fragment{Inner: dav.RenderSupportedLock()}}, true, nil
	}
	return props.Value{}, false, nil
}
