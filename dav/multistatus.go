// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"fmt"
	"net/http"

	"github.com/valyala/bytebufferpool"

	"github.com/infinite-iroha/davcore/dav/davpath"
	"github.com/infinite-iroha/davcore/dav/props"
)

// PropStatusGroup is one <D:propstat> element: the properties that
// shared an outcome, plus the status line they share, per spec.md §4.7.
type PropStatusGroup struct {
	Values map[props.QName]props.Value // nil value means "propname only" (no body)
	Status Condition
}

// MultiStatusResponse is one <D:response> element: either a whole-href
// status (e.g. a COPY/MOVE partial failure) or a set of per-property
// status groups (PROPFIND/PROPPATCH).
type MultiStatusResponse struct {
	Href    string
	Status  *Condition // set for a whole-href outcome
	Groups  []PropStatusGroup
}

// MultiStatusWriter incrementally builds and streams a 207 Multi-Status
// response, per spec.md §4.7. Grounded on
// _examples/google-go-webdav/xml/xml.go's MultiStatus.AddPropStatus/
// AddStatus grouping technique, generalized to stream each response
// through a pooled buffer instead of building one in-memory document
// with encoding/xml.MarshalIndent.
type MultiStatusWriter struct {
	w       http.ResponseWriter
	buf     *bytebufferpool.ByteBuffer
	started bool
}

// NewMultiStatusWriter prepares w to receive a streamed 207 response.
// The status line and opening tag are not written until the first
// response is added, so a handler that ends up with zero responses can
// still fall back to a different status.
func NewMultiStatusWriter(w http.ResponseWriter) *MultiStatusWriter {
	return &MultiStatusWriter{w: w, buf: bytebufferpool.Get()}
}

// Close returns the writer's buffer to the pool. Must be called
// exactly once, typically via defer.
func (m *MultiStatusWriter) Close() {
	bytebufferpool.Put(m.buf)
}

func (m *MultiStatusWriter) open() {
	if m.started {
		return
	}
	m.started = true
	m.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	m.w.WriteHeader(StatusMultiStatus)
	fmt.Fprint(m.w, `<?xml version="1.0" encoding="utf-8"?>`+"\n"+`<D:multistatus xmlns:D="DAV:" xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`+"\n")
}

// Add writes one <D:response> element for r, flushing through the
// shared pooled buffer.
func (m *MultiStatusWriter) Add(r MultiStatusResponse) error {
	m.open()
	m.buf.Reset()
	writeResponse(m.buf, r)
	_, err := m.w.Write(m.buf.B)
	return err
}

// Finish closes the <D:multistatus> document. If no response was ever
// added, it writes an empty (still valid) multistatus document.
func (m *MultiStatusWriter) Finish() error {
	m.open()
	_, err := fmt.Fprint(m.w, "</D:multistatus>\n")
	return err
}

func writeResponse(buf *bytebufferpool.ByteBuffer, r MultiStatusResponse) {
	fmt.Fprintf(buf, "<D:response><D:href>%s</D:href>", xmlEscape(davpath.URLEncode(r.Href)))
	if r.Status != nil {
		fmt.Fprintf(buf, "<D:status>HTTP/1.1 %d %s</D:status>", r.Status.Code, StatusText(r.Status.Code))
	}
	for _, g := range r.Groups {
		buf.WriteString("<D:propstat><D:prop>")
		for name, v := range g.Values {
			writeProp(buf, name, v)
		}
		buf.WriteString("</D:prop>")
		fmt.Fprintf(buf, "<D:status>HTTP/1.1 %d %s</D:status>", g.Status.Code, StatusText(g.Status.Code))
		buf.WriteString("</D:propstat>")
	}
	buf.WriteString("</D:response>\n")
}

func writeProp(buf *bytebufferpool.ByteBuffer, name props.QName, v props.Value) {
	tag, xmlns := propTag(name)
	inner, xsiType, xmlLang := v.InnerXML()
	if inner == "" && xsiType == "" && xmlLang == "" && xmlns == "" {
		fmt.Fprintf(buf, "<%s/>", tag)
		return
	}
	buf.WriteByte('<')
	buf.WriteString(tag)
	if xmlns != "" {
		fmt.Fprintf(buf, ` xmlns="%s"`, xmlEscape(xmlns))
	}
	if xsiType != "" {
		fmt.Fprintf(buf, ` xsi:type="%s"`, xsiType)
	}
	if xmlLang != "" {
		fmt.Fprintf(buf, ` xml:lang="%s"`, xmlEscape(xmlLang))
	}
	buf.WriteByte('>')
	buf.WriteString(inner)
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteByte('>')
}

// propTag renders name's element name, using the "D:" prefix for the
// standard DAV: namespace (the common case for both live properties and
// most dead properties) and an unprefixed name with an inline xmlns
// declaration for any other namespace, per spec.md §4.7's dynamic
// namespace allocation requirement.
func propTag(name props.QName) (tag, xmlns string) {
	if name.Space == props.DAVNamespace || name.Space == "" {
		return "D:" + name.Local, ""
	}
	return name.Local, name.Space
}

func xmlEscape(s string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
