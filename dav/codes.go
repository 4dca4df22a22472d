// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// WebDAV-specific HTTP status codes, per
// http://www.webdav.org/specs/rfc4918.html#status.code.extensions.to.http11
const (
	StatusMultiStatus          = 207
	StatusUnprocessableEntity  = 422
	StatusLocked               = 423
	StatusFailedDependency     = 424
	StatusInsufficientStorage  = 507
)

// extStatusText supplies the canonical text for the WebDAV extension
// status codes that net/http.StatusText does not know about.
var extStatusText = map[int]string{
	StatusMultiStatus:         "Multi-Status",
	StatusUnprocessableEntity: "Unprocessable Entity",
	StatusLocked:              "Locked",
	StatusFailedDependency:    "Failed Dependency",
	StatusInsufficientStorage: "Insufficient Storage",
}

// StatusText returns the canonical text for code, falling back to the
// WebDAV extension table when net/http doesn't know the code.
func StatusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return extStatusText[code]
}

// davError is the xsi:type-free DAV:error precondition/postcondition
// element attached to some condition codes, per RFC 4918 §16.
type davError struct {
	XMLName xml.Name `xml:"DAV: error"`
	Inner   []byte   `xml:",innerxml"`
}

// Precondition elements defined by RFC 4918 that the core can emit.
var (
	precondLockTokenSubmitted           = []byte(`<D:lock-token-submitted xmlns:D="DAV:"/>`)
	precondNoConflictingLock            = []byte(`<D:no-conflicting-lock xmlns:D="DAV:"/>`)
	precondCannotModifyProtectedProperty = []byte(`<D:cannot-modify-protected-property xmlns:D="DAV:"/>`)
	precondPropfindFiniteDepth           = []byte(`<D:propfind-finite-depth xmlns:D="DAV:"/>`)
)

// Condition is a canonical (http_status, message, optional DAV:error
// element) triple, the closed taxonomy named in spec.md §4.8.
type Condition struct {
	Code    int
	Message string
	xmlElem []byte // raw <D:xxx/> fragment, or nil
}

// Error implements the error interface so a Condition can be returned
// and type-asserted by callers (the dispatcher in particular).
func (c Condition) Error() string {
	return fmt.Sprintf("%d %s: %s", c.Code, StatusText(c.Code), c.Message)
}

// HasXML reports whether this condition carries a DAV:error body.
func (c Condition) HasXML() bool { return len(c.xmlElem) > 0 }

// WriteXMLError writes the `<D:error>` document for this condition to w,
// per RFC 4918 §8.2. It is a no-op (writes nothing) if the condition has
// no associated XML element.
func (c Condition) WriteXMLError(w http.ResponseWriter) error {
	if !c.HasXML() {
		return nil
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(c.Code)
	_, err := fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>`+"\n"+
		`<D:error xmlns:D="DAV:">`+"%s"+`</D:error>`+"\n", c.xmlElem)
	return err
}

// Canonical condition codes. Representative, non-exhaustive members per
// spec.md §4.8.
var (
	CondOK                  = Condition{Code: http.StatusOK, Message: "OK"}
	CondCreated             = Condition{Code: http.StatusCreated, Message: "Created"}
	CondNoContent           = Condition{Code: http.StatusNoContent, Message: "No Content"}
	CondMultiStatus         = Condition{Code: StatusMultiStatus, Message: "Multi-Status"}
	CondNotModified         = Condition{Code: http.StatusNotModified, Message: "Not Modified"}
	CondBadRequest          = Condition{Code: http.StatusBadRequest, Message: "Bad Request"}
	CondUnauthorized        = Condition{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	CondForbidden           = Condition{Code: http.StatusForbidden, Message: "Forbidden"}
	CondNotFound            = Condition{Code: http.StatusNotFound, Message: "Not Found"}
	CondMethodNotAllowed    = Condition{Code: http.StatusMethodNotAllowed, Message: "Method Not Allowed"}
	CondConflict            = Condition{Code: http.StatusConflict, Message: "Conflict"}
	CondPreconditionFailed  = Condition{Code: http.StatusPreconditionFailed, Message: "Precondition Failed"}
	CondUnsupportedMedia    = Condition{Code: http.StatusUnsupportedMediaType, Message: "Unsupported Media Type"}
	CondUnprocessableEntity = Condition{Code: StatusUnprocessableEntity, Message: "Unprocessable Entity"}
	CondFailedDependency    = Condition{Code: StatusFailedDependency, Message: "Failed Dependency"}
	CondInsufficientStorage = Condition{Code: StatusInsufficientStorage, Message: "Insufficient Storage"}
	CondInternalError       = Condition{Code: http.StatusInternalServerError, Message: "Internal Server Error"}

	// CondLockedTokenSubmitted is returned when a write targets a locked
	// resource and the client didn't submit the covering lock's token.
	CondLockedTokenSubmitted = Condition{Code: StatusLocked, Message: "Locked", xmlElem: precondLockTokenSubmitted}
	// CondLockedNoConflicting is returned by LOCK when an incompatible
	// lock already exists.
	CondLockedNoConflicting = Condition{Code: StatusLocked, Message: "Locked", xmlElem: precondNoConflictingLock}
	// CondProtectedProperty is returned by PROPPATCH attempts against a
	// protected live property.
	CondProtectedProperty = Condition{Code: http.StatusForbidden, Message: "Forbidden", xmlElem: precondCannotModifyProtectedProperty}
	// CondFiniteDepthRequired is returned by PROPFIND when the server
	// declines Depth: infinity.
	CondFiniteDepthRequired = Condition{Code: http.StatusForbidden, Message: "Forbidden", xmlElem: precondPropfindFiniteDepth}
)

// WriteSimple writes the text-response form spec.md §7 defines for
// simple errors: "METHOD PATH\nCODE MESSAGE\n". It never writes a body
// for 204/304.
func WriteSimple(w http.ResponseWriter, method, path string, c Condition) {
	if c.Code == http.StatusNoContent || c.Code == http.StatusNotModified {
		w.WriteHeader(c.Code)
		return
	}
	if c.HasXML() {
		c.WriteXMLError(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(c.Code)
	fmt.Fprintf(w, "%s %s\n%d %s\n", method, path, c.Code, c.Message)
}
