// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.

// XML request-body handling: a decoder hardened against external and
// oversized entity expansion, and the PROPFIND/PROPPATCH/LOCK body
// parsers built on it. Parsing shapes are generalized from
// _examples/google-go-webdav/xml/xml.go's open-ended Any/prop decoding
// (rather than the fixed-field struct _examples/infinite-iroha-touka's
// webdav.go uses), so that arbitrary dead-property namespaces round-trip.
package dav

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"github.com/infinite-iroha/davcore/dav/props"
)

// maxEntityExpansion bounds the replacement text of any internal DTD
// <!ENTITY> declaration, per spec.md §4.1.
const maxEntityExpansion = 100

var (
	// ErrExternalEntity is returned when a request body's DOCTYPE
	// declares a SYSTEM or PUBLIC (external) entity, which spec.md §4.1
	// forbids resolving.
	ErrExternalEntity = errors.New("dav: external XML entities are not permitted")
	// ErrEntityTooLarge is returned when a declared entity's replacement
	// text exceeds maxEntityExpansion characters.
	ErrEntityTooLarge   = errors.New("dav: XML entity replacement text exceeds the 100 character limit")
	ErrMalformedEntity  = errors.New("dav: malformed <!ENTITY declaration")
	ErrNoPropertiesNamed = errors.New("dav: propfind body names no properties")
)

// decodeXML parses body into v using a Decoder whose entity table has
// been built by scanEntities: custom internal entities are honored up
// to maxEntityExpansion characters, external entities are rejected
// outright, and predefined XML entities always work regardless.
// Decoder.Strict is left false so whitespace-significant chardata
// (RFC 4918 §4.3) and namespace-prefixed content from lenient clients
// both survive, grounded on maxreader.go's cap-then-trust-the-stdlib-
// parser approach applied here to entity text instead of raw bytes.
func decodeXML(body []byte, v interface{}) error {
	entities, err := scanEntities(body)
	if err != nil {
		return err
	}
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	d.Entity = entities
	return d.Decode(v)
}

// scanEntities walks body for <!ENTITY name "value"> declarations. It
// never interprets a DOCTYPE's structure beyond finding these
// declarations textually — DTDs are otherwise permitted but inert, per
// spec.md §4.1.
func scanEntities(body []byte) (map[string]string, error) {
	out := make(map[string]string)
	idx := 0
	for {
		rel := bytes.Index(body[idx:], []byte("<!ENTITY"))
		if rel < 0 {
			break
		}
		abs := idx + rel
		end := bytes.IndexByte(body[abs:], '>')
		if end < 0 {
			return nil, ErrMalformedEntity
		}
		decl := string(body[abs+len("<!ENTITY") : abs+end])
		idx = abs + end + 1

		if strings.Contains(decl, "SYSTEM") || strings.Contains(decl, "PUBLIC") {
			return nil, ErrExternalEntity
		}
		name, value, ok := parseEntityDecl(decl)
		if !ok {
			continue
		}
		if len(value) > maxEntityExpansion {
			return nil, ErrEntityTooLarge
		}
		out[name] = value
	}
	return out, nil
}

// parseEntityDecl extracts name and value from the text between
// "<!ENTITY" and the closing ">" of a general internal entity
// declaration ("<!ENTITY name \"value\">"). Parameter entities ('%') and
// anything else unrecognized are skipped, not rejected.
func parseEntityDecl(decl string) (name, value string, ok bool) {
	decl = strings.TrimSpace(decl)
	if strings.HasPrefix(decl, "%") {
		return "", "", false
	}
	sp := strings.IndexAny(decl, " \t\r\n")
	if sp < 0 {
		return "", "", false
	}
	name = decl[:sp]
	rest := strings.TrimSpace(decl[sp:])
	if len(rest) < 2 {
		return "", "", false
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return "", "", false
	}
	closeIdx := strings.IndexByte(rest[1:], quote)
	if closeIdx < 0 {
		return "", "", false
	}
	return name, rest[1 : 1+closeIdx], true
}

// rawProp is the open-ended shape of one child of <prop>, <include>, or
// a PROPPATCH <set>/<remove> block: any namespace-qualified element,
// captured with its (optional) xsi:type and xml:lang so typed live
// values round-trip.
type rawProp struct {
	XMLName xml.Name
	XSIType string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	XMLLang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Inner   string `xml:",innerxml"`
}

func (r rawProp) qname() props.QName { return props.QName{Space: r.XMLName.Space, Local: r.XMLName.Local} }

type propfindXML struct {
	XMLName  xml.Name  `xml:"DAV: propfind"`
	AllProp  *struct{} `xml:"DAV: allprop"`
	PropName *struct{} `xml:"DAV: propname"`
	Prop     *struct {
		Any []rawProp `xml:",any"`
	} `xml:"DAV: prop"`
	Include *struct {
		Any []rawProp `xml:",any"`
	} `xml:"DAV: include"`
}

// ParsePropfind parses a PROPFIND request body, per RFC 4918 §9.1. A
// zero-length body (the common "get everything" shorthand some clients
// send in place of an explicit <allprop/>) is treated as an allprop
// query, per spec.md §4.4.
func ParsePropfind(body []byte) (props.Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return props.Request{AllProp: true}, nil
	}
	var pf propfindXML
	if err := decodeXML(body, &pf); err != nil {
		return props.Request{}, err
	}
	req := props.Request{AllProp: pf.AllProp != nil, PropName: pf.PropName != nil}
	if pf.Prop != nil {
		for _, a := range pf.Prop.Any {
			req.Names = append(req.Names, a.qname())
		}
	}
	if pf.Include != nil {
		for _, a := range pf.Include.Any {
			req.Include = append(req.Include, a.qname())
		}
	}
	if !req.AllProp && !req.PropName && len(req.Names) == 0 {
		return props.Request{}, ErrNoPropertiesNamed
	}
	return req, nil
}

// ParsePropPatch parses a PROPPATCH <propertyupdate> body into an
// ordered operation list, preserving document order across interleaved
// <set>/<remove> blocks (spec.md §4.4's "operations are executed in
// document order"). Grounded on google-go-webdav/xml.go's ParsePropPatch
// manual token-loop technique (a struct-tag decode can't preserve
// relative ordering between sibling <set> and <remove> elements), each
// property additionally run through props.ParseWireValue so a malformed
// typed value is carried as a PatchOp.ParseErr rather than aborting the
// whole parse.
func ParsePropPatch(body []byte) ([]props.PatchOp, error) {
	entities, err := scanEntities(body)
	if err != nil {
		return nil, err
	}
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	d.Entity = entities

	if _, err := findStartElement(d, "propertyupdate", ""); err != nil {
		return nil, err
	}

	var ops []props.PatchOp
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if ee, ok := tok.(xml.EndElement); ok {
			if ee.Name.Local == "propertyupdate" {
				break
			}
			continue
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "set" && se.Name.Local != "remove" {
			d.Skip()
			continue
		}
		opKind := props.OpSet
		if se.Name.Local == "remove" {
			opKind = props.OpRemove
		}
		propTok, err := findStartElement(d, "prop", se.Name.Local)
		if err != nil {
			return nil, err
		}
		if propTok == nil {
			continue
		}
		var p struct {
			Any []rawProp `xml:",any"`
		}
		if err := d.DecodeElement(&p, propTok); err != nil {
			return nil, err
		}
		for _, a := range p.Any {
			op := props.PatchOp{Op: opKind, Name: a.qname()}
			if opKind == props.OpSet {
				v, err := props.ParseWireValue(a.XSIType, a.XMLLang, a.Inner)
				if err != nil {
					op.ParseErr = err
				} else {
					op.Value = v
				}
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// findStartElement consumes tokens until it finds a start element named
// name, an end element named halt (returning nil, nil), or EOF/error.
func findStartElement(d *xml.Decoder, name, halt string) (*xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local == name {
				return &se, nil
			}
			d.Skip()
			continue
		}
		if ee, ok := tok.(xml.EndElement); ok && halt != "" && ee.Name.Local == halt {
			return nil, nil
		}
	}
}

// LockRequestBody is a parsed LOCK request's <lockinfo> entity. A
// zero-length body is a lock refresh against an existing token rather
// than a new lock, per RFC 4918 §9.10.2.
type LockRequestBody struct {
	Refresh   bool
	Exclusive bool
	OwnerXML  string
}

var (
	ErrLockMustBeWrite           = errors.New("dav: lockinfo must declare locktype write")
	ErrLockScopeRequired         = errors.New("dav: lockinfo must declare exactly one lockscope")
)

type lockInfoXML struct {
	XMLName   xml.Name  `xml:"DAV: lockinfo"`
	Exclusive *struct{} `xml:"DAV: lockscope>exclusive"`
	Shared    *struct{} `xml:"DAV: lockscope>shared"`
	Write     *struct{} `xml:"DAV: locktype>write"`
	Owner     struct {
		Inner string `xml:",innerxml"`
	} `xml:"DAV: owner"`
}

// ParseLockInfo parses a LOCK request body, per RFC 4918 §9.10.
func ParseLockInfo(body []byte) (LockRequestBody, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return LockRequestBody{Refresh: true}, nil
	}
	var li lockInfoXML
	if err := decodeXML(body, &li); err != nil {
		return LockRequestBody{}, err
	}
	if li.Write == nil {
		return LockRequestBody{}, ErrLockMustBeWrite
	}
	if (li.Exclusive == nil) == (li.Shared == nil) {
		return LockRequestBody{}, ErrLockScopeRequired
	}
	return LockRequestBody{Exclusive: li.Exclusive != nil, OwnerXML: li.Owner.Inner}, nil
}
