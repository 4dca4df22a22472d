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

// Package props implements the WebDAV property engine: PROPFIND
// selected/allprop/propname queries and ordered PROPPATCH transactions,
// per spec.md §4.4. Generalized from
// _examples/google-go-webdav/xml/xml.go's Any/prop/propstat shapes
// (open-ended `[]Any` rather than a fixed field list) and from
// _examples/infinite-iroha-touka/webdav/webdav.go's reserved live
// property struct shapes.
package props

// QName is a namespace-qualified property name, per spec.md §3.
type QName struct {
	Space string
	Local string
}

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return q.Space + ":" + q.Local
}

// DAVNamespace is the standard "DAV:" namespace.
const DAVNamespace = "DAV:"

// Reserved live property names, per spec.md §3.
var (
	PropCreationDate    = QName{DAVNamespace, "creationdate"}
	PropDisplayName     = QName{DAVNamespace, "displayname"}
	PropGetContentLen   = QName{DAVNamespace, "getcontentlength"}
	PropGetContentType  = QName{DAVNamespace, "getcontenttype"}
	PropGetETag         = QName{DAVNamespace, "getetag"}
	PropGetLastModified = QName{DAVNamespace, "getlastmodified"}
	PropResourceType    = QName{DAVNamespace, "resourcetype"}
	PropLockDiscovery   = QName{DAVNamespace, "lockdiscovery"}
	PropSupportedLock   = QName{DAVNamespace, "supportedlock"}
)

// protectedProps cannot be modified via PROPPATCH, per spec.md §3.
var protectedProps = map[QName]bool{
	PropLockDiscovery: true,
	PropSupportedLock: true,
}

// IsProtected reports whether name is a protected live property.
func IsProtected(name QName) bool { return protectedProps[name] }

// TypedKind enumerates the RFC 4316 xsi:type scalar families spec.md §3
// names for typed live values.
type TypedKind int

const (
	TypedString TypedKind = iota
	TypedInt
	TypedDecimal
	TypedBool
	TypedDateTime
	TypedDuration
	TypedURI
	TypedBinary
)

// Typed is a typed live property value.
type Typed struct {
	Kind TypedKind
	// Raw is the value's canonical string form (decimal digits, RFC 3339
	// instant, ISO 8601 duration, URI text, or base64/hex text for Binary).
	Raw string
	// HexBinary marks a Binary value serialized as hexBinary rather than
	// base64Binary.
	HexBinary bool
}

// xsiType returns the "xs:"-prefixed xsi:type value RFC 4316 assigns
// this kind.
func (t Typed) xsiType() string {
	switch t.Kind {
	case TypedInt:
		return "xs:int"
	case TypedDecimal:
		return "xs:decimal"
	case TypedBool:
		return "xs:boolean"
	case TypedDateTime:
		return "xs:dateTime"
	case TypedDuration:
		return "xs:duration"
	case TypedURI:
		return "xs:anyURI"
	case TypedBinary:
		if t.HexBinary {
			return "xs:hexBinary"
		}
		return "xs:base64Binary"
	default:
		return "xs:string"
	}
}

// Fragment is a structured XML fragment value: a dead property, or a
// live value with no typed representation, per spec.md §3.
type Fragment struct {
	XSIType string // optional, verbatim xsi:type attribute value if present
	XMLLang string // optional, inherited xml:lang
	Inner   string // raw inner XML (chardata and/or subelements), preserved verbatim
}

// Value is either a structured Fragment or a Typed scalar. Exactly one
// of Fragment/Typed should be set; the zero Value is an empty fragment.
type Value struct {
	Fragment *Fragment
	Typed    *Typed
}

// NewText returns a plain-text fragment value.
func NewText(s string) Value {
	return Value{Fragment: &Fragment{Inner: s}}
}

// NewTyped returns a typed scalar value.
func NewTyped(kind TypedKind, raw string) Value {
	return Value{Typed: &Typed{Kind: kind, Raw: raw}}
}

// InnerXML returns the value's content as it should appear between the
// property's open and close tags, and the xsi:type attribute value (if
// any) that should accompany it.
func (v Value) InnerXML() (inner, xsiType, xmlLang string) {
	if v.Typed != nil {
		return v.Typed.Raw, v.Typed.xsiType(), ""
	}
	if v.Fragment != nil {
		return v.Fragment.Inner, v.Fragment.XSIType, v.Fragment.XMLLang
	}
	return "", "", ""
}

// Store is the dead-property persistence contract, per spec.md §6.
// Implementations live in dav/memfs and dav/osfs.
type Store interface {
	// Get returns the dead properties currently stored for path.
	Get(path string) (map[QName]Value, error)
	// Patch applies ops atomically: either every operation succeeds and
	// is persisted, or none is. Patch itself does not police protected
	// properties or duplicate names across the batch — ExecutePropPatch
	// (propfind.go's sibling, proppatch.go) does that before calling in.
	Patch(path string, ops []PatchOp) error
	// RemoveAll discards every dead property stored for path (called
	// when the resource itself is deleted).
	RemoveAll(path string) error
}

// OpKind distinguishes a PROPPATCH set from a remove, per spec.md §3.
type OpKind int

const (
	OpSet OpKind = iota
	OpRemove
)

// PatchOp is one element of a PROPPATCH batch's ordered operation list.
type PatchOp struct {
	Op    OpKind
	Name  QName
	Value Value // meaningful only when Op == OpSet
	// ParseErr is set by the request parser when Op == OpSet and the
	// element's xsi:type-declared value failed its lexical form check
	// (ErrInvalidTypedValue). ExecutePropPatch reports it as
	// OutcomeUnprocessable rather than applying the store.
	ParseErr error
}
