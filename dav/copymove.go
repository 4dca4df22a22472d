// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"context"
	"time"

	"github.com/infinite-iroha/davcore/dav/davpath"
)

// CopyMovePlan is the validated outcome of checking a COPY or MOVE
// request's preconditions, per spec.md §4.6, before any backend I/O
// runs. A non-nil Reject means the operation must not proceed; the
// caller writes Reject as the response and stops.
type CopyMovePlan struct {
	Reject          *Condition
	DestExisted     bool
	DestWasCollection bool
}

// lockRemover is the subset of *locks.Manager the planner needs, kept
// narrow so this file does not import dav/locks (see precondition.go's
// LockCoverage for the same reasoning).
type lockRemover interface {
	RemoveRootedAt(now time.Time, path string) []string
}

// destDeleter is the subset of ResourceBackend FinishCopyMove needs to
// clear a pre-existing destination subtree before an overwrite.
type destDeleter interface {
	Delete(ctx context.Context, r Resource) error
}

// PlanCopyMove validates a COPY/MOVE request's path and destination-state
// rules, per spec.md §4.6's Policies list. backend.Resolve on destPath
// has already been done by the caller and is passed in as dest.
func PlanCopyMove(srcPath, destPath string, dest Resource, isMove bool, zeroDepth, overwrite, srcIsCollection bool, destParentExists bool) CopyMovePlan {
	srcClean := davpath.WithoutTrailingSlash(srcPath)
	destClean := davpath.WithoutTrailingSlash(destPath)

	if srcClean == destClean {
		c := CondForbidden
		return CopyMovePlan{Reject: &c}
	}
	if davpath.InTree(destClean, srcClean) {
		c := CondForbidden
		return CopyMovePlan{Reject: &c}
	}
	if !destParentExists {
		c := CondConflict
		return CopyMovePlan{Reject: &c}
	}
	if dest.Exists && !overwrite {
		c := CondPreconditionFailed
		return CopyMovePlan{Reject: &c}
	}
	if isMove && srcIsCollection && zeroDepth {
		c := CondBadRequest
		return CopyMovePlan{Reject: &c}
	}
	return CopyMovePlan{DestExisted: dest.Exists, DestWasCollection: dest.IsCollection}
}

// FinishCopyMove runs the backend operation (via do) after PlanCopyMove
// approved the request, clearing the destination's locks, dead
// properties, and — per spec.md §4.6's "delete destination first; then
// create/replace" overwrite semantics — its entire existing subtree
// first when it is being overwritten. It returns the HTTP status
// (201/204/207) and, when partial failure occurred, the CopyResult to
// render as a multi-status body.
func FinishCopyMove(ctx context.Context, now time.Time, locks lockRemover, props PropertyStore, backend destDeleter, destPath string, plan CopyMovePlan, do func() (CopyResult, error)) (Condition, *CopyResult, error) {
	if plan.DestExisted {
		locks.RemoveRootedAt(now, destPath)
		if err := props.RemoveAll(destPath); err != nil {
			return CondInternalError, nil, err
		}
		if err := backend.Delete(ctx, Resource{Path: destPath, IsCollection: plan.DestWasCollection}); err != nil {
			return CondInternalError, nil, err
		}
	}

	result, err := do()
	if err != nil {
		return CondInternalError, nil, err
	}
	if len(result.Failures) > 0 {
		return CondMultiStatus, &result, nil
	}
	if plan.DestExisted {
		return CondNoContent, nil, nil
	}
	return CondCreated, nil, nil
}
