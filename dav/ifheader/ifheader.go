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

// Package ifheader parses the WebDAV "If" request header (RFC 4918
// §10.4) into the tagged-list/condition-list/condition structure
// spec.md §4.1 names, generalized from golang.org/x/net/webdav's
// unexported cond package (the no-longer-vendored form of which ships
// in this repo's teacher pack as google-go-webdav/cond).
package ifheader

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two condition shapes the grammar allows.
type Kind int

const (
	// KindLockToken is a bare or angle-bracketed state-token, e.g. <urn:uuid:...>.
	KindLockToken Kind = iota
	// KindEntityTag is a bracketed entity-tag, e.g. ["abc"] or [W/"abc"].
	KindEntityTag
)

// Condition is a single, possibly negated, state-token or entity-tag
// test, per spec.md §4.1.
type Condition struct {
	Negated bool
	Kind    Kind
	Token   string // set when Kind == KindLockToken
	ETag    string // raw serialized form, set when Kind == KindEntityTag (e.g. `"abc"` or `W/"abc"`)
}

func (c Condition) String() string {
	prefix := ""
	if c.Negated {
		prefix = "Not "
	}
	if c.Kind == KindEntityTag {
		return prefix + "[" + c.ETag + "]"
	}
	return prefix + "<" + c.Token + ">"
}

func parseCondition(l *lex) (Condition, error) {
	var c Condition
	tok := l.peek()
	if tok == tokNot {
		c.Negated = true
		l.consume()
		tok = l.peek()
	}
	if tok == '[' {
		l.consume()
		et, err := l.consumeUntil(']')
		if err != nil {
			return c, err
		}
		if et == "" {
			return c, fmt.Errorf("ifheader: empty entity-tag")
		}
		c.Kind = KindEntityTag
		c.ETag = et
		return c, nil
	}
	tt, err := l.consumeIf(func(r rune) bool { return r != ')' && r != ' ' })
	if err != nil {
		return c, err
	}
	if len(tt) >= 2 && tt[0] == '<' && tt[len(tt)-1] == '>' {
		tt = tt[1 : len(tt)-1]
	}
	if tt == "" {
		return c, fmt.Errorf("ifheader: empty condition")
	}
	c.Kind = KindLockToken
	c.Token = tt
	return c, nil
}

// ConditionList is a set of Conditions that are AND'ed together.
type ConditionList struct {
	Conditions []Condition
}

func (l ConditionList) String() string {
	parts := make([]string, len(l.Conditions))
	for i, c := range l.Conditions {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func parseConditionList(l *lex) (ConditionList, error) {
	var res ConditionList
	if l.peek() != '(' {
		return res, fmt.Errorf("ifheader: expected '(' got %q", tokenText(l.peek()))
	}
	l.consume()
	for {
		tok := l.peek()
		if tok == ')' {
			l.consume()
			return res, nil
		}
		if tok == tokEOF {
			return res, fmt.Errorf("ifheader: unexpected end of input in condition list")
		}
		c, err := parseCondition(l)
		if err != nil {
			return res, err
		}
		res.Conditions = append(res.Conditions, c)
	}
}

// TaggedList is a ConditionList group, optionally scoped to a specific
// resource URI ("tag"). An untagged list applies to the request-URI.
type TaggedList struct {
	Resource string // "" means untagged (applies to the Request-URI)
	Lists    []ConditionList
}

func (t TaggedList) String() string {
	parts := make([]string, len(t.Lists))
	for i, l := range t.Lists {
		parts[i] = l.String()
	}
	prefix := ""
	if t.Resource != "" {
		prefix = "<" + t.Resource + "> "
	}
	return prefix + strings.Join(parts, " ")
}

func parseTaggedList(l *lex) (TaggedList, error) {
	var res TaggedList
	if l.peek() == '<' {
		l.consume()
		r, err := l.consumeUntil('>')
		if err != nil || r == "" {
			return res, fmt.Errorf("ifheader: could not parse resource tag")
		}
		res.Resource = r
	}
	cl, err := parseConditionList(l)
	if err != nil {
		return res, err
	}
	res.Lists = append(res.Lists, cl)
	for l.peek() == '(' {
		cl, err := parseConditionList(l)
		if err != nil {
			return res, err
		}
		res.Lists = append(res.Lists, cl)
	}
	return res, nil
}

// Header is a fully parsed If header: a sequence of TaggedLists. The
// header as a whole is satisfied if any one TaggedList whose resource
// matches is satisfied; a TaggedList is satisfied if any one of its
// ConditionLists evaluates to true (the grammar is a DNF condition:
// OR of ANDs), per spec.md §4.2 step 6.
type Header struct {
	Lists []TaggedList
}

func (h Header) String() string {
	parts := make([]string, len(h.Lists))
	for i, l := range h.Lists {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

// Parse parses the value of an If request header. Any malformed input
// is rejected, per spec.md §4.1.
func Parse(s string) (Header, error) {
	var h Header
	l := newLex(s)
	for l.peek() != tokEOF {
		tl, err := parseTaggedList(l)
		if err != nil {
			return h, err
		}
		h.Lists = append(h.Lists, tl)
	}
	if len(h.Lists) == 0 {
		return h, fmt.Errorf("ifheader: empty If header")
	}
	return h, nil
}

// AllTokens returns every lock-token mentioned anywhere in the header,
// regardless of negation — the header implicitly "submits" every token
// it names, per spec.md §4.3.
func (h Header) AllTokens() []string {
	var toks []string
	for _, tl := range h.Lists {
		for _, cl := range tl.Lists {
			for _, c := range cl.Conditions {
				if c.Kind == KindLockToken {
					toks = append(toks, c.Token)
				}
			}
		}
	}
	return toks
}
