// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.

// Package dav is the WebDAV core: method dispatch, RFC 7232/4918
// precondition evaluation, the property engine's wiring, the COPY/MOVE
// planner, and the streaming multi-status builder. Handler's method
// switch is grounded on
// _examples/infinite-iroha-touka/webdav/webdav.go's ServeTouka, adapted
// from a touka.Context-bound handler to a plain http.Handler and
// generalized to drive the precondition/lock/property machinery
// spec.md §4 requires that the teacher's version didn't implement.
package dav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/WJQSERVER-STUDIO/go-utils/iox"
	"github.com/valyala/bytebufferpool"

	"github.com/infinite-iroha/davcore/dav/davpath"
	"github.com/infinite-iroha/davcore/dav/ifheader"
	"github.com/infinite-iroha/davcore/dav/locks"
	"github.com/infinite-iroha/davcore/dav/props"
)

// maxRequestBody bounds an in-memory XML request body (PROPFIND,
// PROPPATCH, LOCK). Chosen generously for property/lock metadata, which
// is never expected to approach PUT-sized payloads.
const maxRequestBody = 4 << 20 // 4 MiB

// Handler dispatches WebDAV requests against a ResourceBackend, per
// spec.md §4.5 and §7. It implements http.Handler so it can be mounted
// on any stdlib-compatible router, including touka via
// touka.AdapterStdHandle (cmd/davserver).
type Handler struct {
	Backend ResourceBackend
	Locks   *locks.Manager
	Props   PropertyStore
	// Authz is consulted after the resource is resolved; nil allows
	// every request (authentication is assumed already done upstream,
	// per spec.md §1's Non-goals).
	Authz AuthorizationFilter

	// DefaultLockTimeout and MaxLockTimeout bound LOCK's Timeout
	// negotiation ("the manager picks the first value it is willing to
	// honor and may clamp to a configured maximum", spec.md §4.1).
	DefaultLockTimeout time.Duration
	MaxLockTimeout     time.Duration

	// Now is overridable for deterministic tests; nil means time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type principalKey struct{}

// WithPrincipal attaches an already-established identity to ctx, for
// Handler.Authz and ActiveLock.principal_id to consume. Establishing
// that identity (authentication) is out of scope, per spec.md §1.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the identity WithPrincipal attached, or
// "" if none was set.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// lockAdapter satisfies precondition.go's LockCoverage over a real
// *locks.Manager, so that package stays free of a dav/locks import.
type lockAdapter struct {
	m   *locks.Manager
	now time.Time
}

func (a lockAdapter) CoversWithToken(token, path string) bool {
	info, err := a.m.Lookup(a.now, token)
	if err != nil {
		return false
	}
	path = davpath.WithoutTrailingSlash(path)
	root := davpath.WithoutTrailingSlash(info.Root)
	if path == root {
		return true
	}
	return !info.ZeroDepth && davpath.InTree(path, root)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	reqPath := davpath.Clean(r.URL.Path)
	defer func() {
		if rec := recover(); rec != nil {
			WriteSimple(w, r.Method, reqPath, CondInternalError)
		}
	}()

	if err := h.checkContentEncoding(r); err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}

	switch r.Method {
	case "OPTIONS":
		h.handleOptions(w, r, reqPath)
	case "GET", "HEAD":
		h.handleGetHead(ctx, w, r, reqPath, now)
	case "PUT":
		h.handlePut(ctx, w, r, reqPath, now)
	case "DELETE":
		h.handleDelete(ctx, w, r, reqPath, now)
	case "MKCOL":
		h.handleMkcol(ctx, w, r, reqPath, now)
	case "COPY":
		h.handleCopy(ctx, w, r, reqPath, now)
	case "MOVE":
		h.handleMove(ctx, w, r, reqPath, now)
	case "PROPFIND":
		h.handlePropfind(ctx, w, r, reqPath, now)
	case "PROPPATCH":
		h.handleProppatch(ctx, w, r, reqPath, now)
	case "LOCK":
		h.handleLock(ctx, w, r, reqPath, now)
	case "UNLOCK":
		h.handleUnlock(ctx, w, r, reqPath, now)
	case "TRACE":
		h.handleTrace(w, r)
	default:
		WriteSimple(w, r.Method, reqPath, CondMethodNotAllowed)
	}
}

func (h *Handler) checkContentEncoding(r *http.Request) error {
	_, err := ParseContentEncoding(r.Header.Get("Content-Encoding"))
	return err
}

// resolveAuthorized resolves reqPath and applies Authz, writing a
// response and returning ok=false if the caller should stop.
func (h *Handler) resolveAuthorized(ctx context.Context, w http.ResponseWriter, method, reqPath string) (res Resource, ok bool) {
	res, err := h.Backend.Resolve(ctx, reqPath)
	if err != nil {
		WriteSimple(w, method, reqPath, CondInternalError)
		return Resource{}, false
	}
	if h.Authz != nil {
		switch h.Authz.Authorize(ctx, PrincipalFromContext(ctx), res, method) {
		case Deny:
			WriteSimple(w, method, reqPath, CondForbidden)
			return Resource{}, false
		case DenyAs404:
			WriteSimple(w, method, reqPath, CondNotFound)
			return Resource{}, false
		}
	}
	return res, true
}

// checkPreconditions parses the conditional headers from r and
// evaluates them against res, writing a response and returning ok=false
// when the request must stop (304/412).
func (h *Handler) checkPreconditions(w http.ResponseWriter, r *http.Request, reqPath string, res Resource, now time.Time) (ok bool) {
	req := &PreconditionRequest{Method: r.Method, Path: reqPath}

	if v := r.Header.Get("If-Match"); v != "" {
		list, err := ParseETagList(v)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return false
		}
		req.IfMatch, req.HasIfMatch = list, true
	}
	if v := r.Header.Get("If-None-Match"); v != "" {
		list, err := ParseETagList(v)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return false
		}
		req.IfNoneMatch, req.HasIfNoneMatch = list, true
	}
	if v := r.Header.Get("If-Unmodified-Since"); v != "" {
		t, err := ParseHTTPDate(v)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return false
		}
		req.IfUnmodifiedSince, req.HasIfUnmodified = t, true
	}
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		t, err := ParseHTTPDate(v)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return false
		}
		req.IfModifiedSince, req.HasIfModified = t, true
	}
	if v := r.Header.Get("If"); v != "" {
		parsed, err := ifheader.Parse(v)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return false
		}
		req.IfHeader, req.HasIfHeader = parsed, true
	}

	state := ResourceState{
		Exists: res.Exists, ETag: res.ETag, HasETag: res.HasETag,
		LastModified: res.LastModified, HasModified: res.HasModified,
	}
	outcome, etag := EvaluatePreconditions(state, lockAdapter{h.Locks, now}, req)
	switch outcome {
	case NotModified:
		if etag.Value != "" {
			w.Header().Set("ETag", etag.String())
		}
		w.WriteHeader(http.StatusNotModified)
		return false
	case PreconditionFailed:
		WriteSimple(w, r.Method, reqPath, CondPreconditionFailed)
		return false
	}
	return true
}

// submittedTokens gathers the lock tokens a request claims via its If
// header, per spec.md §4.3.
func submittedTokens(r *http.Request) []string {
	v := r.Header.Get("If")
	if v == "" {
		return nil
	}
	h, err := ifheader.Parse(v)
	if err != nil {
		return nil
	}
	return h.AllTokens()
}

// checkLockSubmission enforces spec.md §4.3's write-against-locked-
// target rule for a single path, writing 423 Locked on failure.
func (h *Handler) checkLockSubmission(w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) bool {
	if h.Locks.Submitted(now, reqPath, submittedTokens(r)) {
		return true
	}
	WriteSimple(w, r.Method, reqPath, CondLockedTokenSubmitted)
	return false
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request, reqPath string) {
	ctx := r.Context()
	res, err := h.Backend.Resolve(ctx, reqPath)
	allow := []string{"OPTIONS", "PROPFIND"}
	if err == nil {
		allow = h.Backend.AllowedMethods(ctx, res)
	}
	if h.Locks != nil {
		allow = append(allow, "LOCK", "UNLOCK")
	}
	w.Header().Set("Allow", strings.Join(allow, ", "))
	w.Header().Set("DAV", "1, 2")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGetHead(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !res.Exists {
		WriteSimple(w, r.Method, reqPath, CondNotFound)
		return
	}
	if !h.checkPreconditions(w, r, reqPath, res, now) {
		return
	}
	if res.IsCollection {
		WriteSimple(w, r.Method, reqPath, CondForbidden)
		return
	}
	body, err := h.Backend.Read(ctx, res)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}
	defer body.Close()

	if res.HasETag {
		w.Header().Set("ETag", res.ETag.String())
	}
	if res.HasModified {
		w.Header().Set("Last-Modified", FormatHTTPDate(res.LastModified))
	}
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	if res.HasLength {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Length, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == "GET" {
		iox.Copy(w, body)
	}
}

func (h *Handler) handlePut(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	if davpath.IsCollection(reqPath) {
		WriteSimple(w, r.Method, reqPath, CondMethodNotAllowed)
		return
	}
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !h.checkPreconditions(w, r, reqPath, res, now) {
		return
	}
	if !h.checkLockSubmission(w, r, reqPath, now) {
		return
	}
	created, err := h.Backend.Write(ctx, reqPath, r.Body)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return
		}
		WriteSimple(w, r.Method, reqPath, CondConflict)
		return
	}
	if created {
		WriteSimple(w, r.Method, reqPath, CondCreated)
	} else {
		WriteSimple(w, r.Method, reqPath, CondNoContent)
	}
}

func (h *Handler) handleDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !res.Exists {
		WriteSimple(w, r.Method, reqPath, CondNotFound)
		return
	}
	if !h.checkPreconditions(w, r, reqPath, res, now) {
		return
	}
	if !h.checkLockSubmission(w, r, reqPath, now) {
		return
	}
	if err := h.Backend.Delete(ctx, res); err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}
	h.Locks.RemoveRootedAt(now, reqPath)
	h.Props.RemoveAll(reqPath)
	WriteSimple(w, r.Method, reqPath, CondNoContent)
}

func (h *Handler) handleMkcol(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if res.Exists {
		WriteSimple(w, r.Method, reqPath, CondMethodNotAllowed)
		return
	}
	if !h.checkLockSubmission(w, r, reqPath, now) {
		return
	}
	if err := h.Backend.MakeCollection(ctx, reqPath); err != nil {
		WriteSimple(w, r.Method, reqPath, CondConflict)
		return
	}
	WriteSimple(w, r.Method, reqPath, CondCreated)
}

var errMissingDestination = errors.New("dav: missing or unparsable Destination header")

// destination resolves the Destination header into a clean path
// comparable to reqPath. The header carries an absolute URI (RFC 4918
// §9.3); only its path component is meaningful to this server.
func (h *Handler) destination(r *http.Request) (string, error) {
	v := r.Header.Get("Destination")
	if v == "" {
		return "", errMissingDestination
	}
	u, err := url.Parse(v)
	if err != nil || u.Path == "" {
		return "", errMissingDestination
	}
	return davpath.Clean(u.Path), nil
}

func (h *Handler) handleCopy(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	h.copyOrMove(ctx, w, r, reqPath, now, false)
}

func (h *Handler) handleMove(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	h.copyOrMove(ctx, w, r, reqPath, now, true)
}

func (h *Handler) copyOrMove(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time, isMove bool) {
	src, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !src.Exists {
		WriteSimple(w, r.Method, reqPath, CondNotFound)
		return
	}
	if !h.checkPreconditions(w, r, reqPath, src, now) {
		return
	}
	if isMove && !h.checkLockSubmission(w, r, reqPath, now) {
		return
	}

	destPath, err := h.destination(r)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	if !h.checkLockSubmission(w, r, destPath, now) {
		return
	}

	depth, err := ParseDepth(r.Header.Get("Depth"))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	// RFC 4918 §9.8.3/§9.9.2: COPY and MOVE only recognize Depth 0 and
	// infinity; 1 is not a legal value for either.
	if depth == DepthOne {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	zeroDepth := depth == DepthZero

	overwrite, err := ParseOverwrite(r.Header.Get("Overwrite"))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}

	destParent, err := h.Backend.Resolve(ctx, davpath.Parent(destPath))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}
	dest, err := h.Backend.Resolve(ctx, destPath)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}

	plan := PlanCopyMove(reqPath, destPath, dest, isMove, zeroDepth, overwrite, src.IsCollection, destParent.Exists)
	if plan.Reject != nil {
		WriteSimple(w, r.Method, reqPath, *plan.Reject)
		return
	}

	do := func() (CopyResult, error) {
		if isMove {
			return h.Backend.Move(ctx, src, destPath, overwrite)
		}
		return h.Backend.Copy(ctx, src, destPath, zeroDepth, overwrite)
	}
	status, result, err := FinishCopyMove(ctx, now, h.Locks, h.Props, h.Backend, destPath, plan, do)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}
	if result != nil {
		h.writeCopyMoveMultiStatus(w, *result)
		return
	}
	WriteSimple(w, r.Method, reqPath, status)
}

// writeCopyMoveMultiStatus reports a partial COPY/MOVE failure, per
// spec.md §4.6: only the members that failed get a <D:response>, each
// carrying the condition that explains why, grounded on
// google-go-webdav/webdav.go's doDelete (AddStatus per failed path, no
// entry for the ones that succeeded).
func (h *Handler) writeCopyMoveMultiStatus(w http.ResponseWriter, result CopyResult) {
	ms := NewMultiStatusWriter(w)
	defer ms.Close()
	for path, cond := range result.Failures {
		cond := cond
		ms.Add(MultiStatusResponse{Href: path, Status: &cond})
	}
	ms.Finish()
}

func (h *Handler) handlePropfind(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !res.Exists {
		WriteSimple(w, r.Method, reqPath, CondNotFound)
		return
	}

	depth, err := ParseDepth(r.Header.Get("Depth"))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	if depth == DepthInvalid {
		depth = DepthInfinity
	}
	if depth == DepthInfinity && !res.IsCollection {
		depth = DepthZero
	}

	body, err := iox.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	query, err := ParsePropfind(body)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}

	targets, err := h.collectPropfindTargets(ctx, res, depth)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}

	ms := NewMultiStatusWriter(w)
	defer ms.Close()
	live := h.Backend.LiveProperties()
	for _, target := range targets {
		result, err := props.Execute(h.Props, live, target.Path, query)
		if err != nil {
			ms.Add(MultiStatusResponse{Href: target.Path, Status: &CondInternalError})
			continue
		}
		resp := MultiStatusResponse{Href: target.Path}
		if len(result.Found) > 0 {
			resp.Groups = append(resp.Groups, PropStatusGroup{Values: result.Found, Status: CondOK})
		}
		if len(result.Missing) > 0 {
			missing := make(map[props.QName]props.Value, len(result.Missing))
			for _, n := range result.Missing {
				missing[n] = props.Value{}
			}
			resp.Groups = append(resp.Groups, PropStatusGroup{Values: missing, Status: CondNotFound})
		}
		ms.Add(resp)
	}
	ms.Finish()
}

func (h *Handler) collectPropfindTargets(ctx context.Context, root Resource, depth Depth) ([]Resource, error) {
	targets := []Resource{root}
	if depth == DepthZero || !root.IsCollection {
		return targets, nil
	}
	children, err := h.Backend.ListChildren(ctx, root)
	if err != nil {
		return nil, err
	}
	targets = append(targets, children...)
	if depth != DepthInfinity {
		return targets, nil
	}
	for _, child := range children {
		if !child.IsCollection {
			continue
		}
		grandchildren, err := h.collectPropfindTargets(ctx, child, DepthInfinity)
		if err != nil {
			return nil, err
		}
		targets = append(targets, grandchildren[1:]...)
	}
	return targets, nil
}

func (h *Handler) handleProppatch(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}
	if !res.Exists {
		WriteSimple(w, r.Method, reqPath, CondNotFound)
		return
	}
	if !h.checkPreconditions(w, r, reqPath, res, now) {
		return
	}
	if !h.checkLockSubmission(w, r, reqPath, now) {
		return
	}

	body, err := iox.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	ops, err := ParsePropPatch(body)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}

	outcomes, err := props.ExecutePropPatch(h.Props, reqPath, ops)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondInternalError)
		return
	}
	// A duplicate property name anywhere in the batch is a malformed
	// request, per spec.md §4.4 — report it as a bare 400, not folded
	// into a 207 Multi-Status propstat group.
	for _, outcome := range outcomes {
		if outcome == props.OutcomeDuplicate {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return
		}
	}

	ms := NewMultiStatusWriter(w)
	defer ms.Close()
	resp := MultiStatusResponse{Href: reqPath}
	byOutcome := make(map[props.PatchOutcome][]props.QName)
	for name, outcome := range outcomes {
		byOutcome[outcome] = append(byOutcome[outcome], name)
	}
	for outcome, names := range byOutcome {
		values := make(map[props.QName]props.Value, len(names))
		for _, n := range names {
			values[n] = props.Value{}
		}
		resp.Groups = append(resp.Groups, PropStatusGroup{Values: values, Status: patchOutcomeCondition(outcome)})
	}
	ms.Add(resp)
	ms.Finish()
}

func patchOutcomeCondition(o props.PatchOutcome) Condition {
	switch o {
	case props.OutcomeOK:
		return CondOK
	case props.OutcomeForbidden:
		return CondProtectedProperty
	case props.OutcomeFailedDependency:
		return CondFailedDependency
	case props.OutcomeDuplicate:
		return CondBadRequest
	case props.OutcomeUnprocessable:
		return CondUnprocessableEntity
	default:
		return CondInternalError
	}
}

func (h *Handler) handleLock(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	res, ok := h.resolveAuthorized(ctx, w, r.Method, reqPath)
	if !ok {
		return
	}

	body, err := iox.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	li, err := ParseLockInfo(body)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}

	duration := h.negotiateTimeout(r.Header.Get("Timeout"))

	var info *locks.Info
	if li.Refresh {
		token := firstSubmittedToken(r)
		if token == "" {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return
		}
		info, err = h.Locks.Refresh(now, token, duration)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondPreconditionFailed)
			return
		}
	} else {
		depth, derr := ParseDepth(r.Header.Get("Depth"))
		if derr != nil {
			WriteSimple(w, r.Method, reqPath, CondBadRequest)
			return
		}
		zeroDepth := depth == DepthZero
		scope := locks.ScopeShared
		if li.Exclusive {
			scope = locks.ScopeExclusive
		}
		info, err = h.Locks.Add(now, reqPath, scope, zeroDepth, li.OwnerXML, duration)
		if err != nil {
			WriteSimple(w, r.Method, reqPath, CondLockedNoConflicting)
			return
		}
		// Locking an unmapped URL provisionally creates a lock-null
		// resource, per RFC 4918 §7.4: an empty entity that exists only
		// for lock bookkeeping until the first PUT/MKCOL fills it in.
		if !res.Exists && !davpath.IsCollection(reqPath) {
			if _, werr := h.Backend.Write(ctx, reqPath, strings.NewReader("")); werr != nil {
				h.Locks.Remove(now, info.Token)
				WriteSimple(w, r.Method, reqPath, CondInternalError)
				return
			}
		}
	}

	w.Header().Set("Lock-Token", "<"+info.Token+">")
	writeLockDiscovery(w, info)
}

// writeLockDiscovery writes the lone <D:prop><D:lockdiscovery> document
// LOCK responds with, per RFC 4918 §9.10.1 — a single active-lock
// description, not a multi-status envelope.
func writeLockDiscovery(w http.ResponseWriter, info *locks.Info) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n" +
		`<D:prop xmlns:D="DAV:"><D:lockdiscovery>`)
	RenderActiveLock(buf, info)
	buf.WriteString("</D:lockdiscovery></D:prop>\n")

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.B)
}

func (h *Handler) negotiateTimeout(header string) time.Duration {
	prefs, err := ParseTimeouts(header)
	if err != nil || len(prefs) == 0 {
		if h.DefaultLockTimeout > 0 {
			return h.DefaultLockTimeout
		}
		return locks.Infinite
	}
	for _, p := range prefs {
		if p.Infinite {
			if h.MaxLockTimeout > 0 {
				return h.MaxLockTimeout
			}
			return locks.Infinite
		}
		d := time.Duration(p.Seconds) * time.Second
		if h.MaxLockTimeout > 0 && d > h.MaxLockTimeout {
			d = h.MaxLockTimeout
		}
		return d
	}
	return locks.Infinite
}

func firstSubmittedToken(r *http.Request) string {
	toks := submittedTokens(r)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}

func (h *Handler) handleUnlock(ctx context.Context, w http.ResponseWriter, r *http.Request, reqPath string, now time.Time) {
	tok := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(r.Header.Get("Lock-Token")), "<"), ">")
	if tok == "" {
		WriteSimple(w, r.Method, reqPath, CondBadRequest)
		return
	}
	info, err := h.Locks.Lookup(now, tok)
	if err != nil {
		WriteSimple(w, r.Method, reqPath, CondConflict)
		return
	}
	if davpath.WithoutTrailingSlash(info.Root) != davpath.WithoutTrailingSlash(reqPath) {
		WriteSimple(w, r.Method, reqPath, CondConflict)
		return
	}
	if err := h.Locks.Remove(now, tok); err != nil {
		WriteSimple(w, r.Method, reqPath, CondConflict)
		return
	}
	WriteSimple(w, r.Method, reqPath, CondNoContent)
}

// handleTrace echoes the request per RFC 7231 §4.3.8, so a client can
// see exactly what the server received (e.g. through an intermediary
// that rewrites headers).
func (h *Handler) handleTrace(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "message/http")
	w.WriteHeader(http.StatusOK)
	var b strings.Builder
	b.WriteString(r.Method + " " + r.URL.RequestURI() + " " + r.Proto + "\r\n")
	for name, values := range r.Header {
		for _, v := range values {
			b.WriteString(name + ": " + v + "\r\n")
		}
	}
	io.WriteString(w, b.String())
}
