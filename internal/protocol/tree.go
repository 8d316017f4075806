// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Node is an element of a strictly parsed document. Only what the exchange
// dialect needs is kept: names, attributes, children and the concatenated
// text of the subtree.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node

	text strings.Builder
}

// Text returns the text content of the subtree, CDATA sections included,
// with entities decoded.
func (n *Node) Text() string {
	return n.text.String()
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Label returns the display label carried by the element: the name
// attribute, else the id attribute, else "".
func (n *Node) Label() string {
	if v := n.Attrs["name"]; v != "" {
		return v
	}
	return n.Attrs["id"]
}

// Descendants returns every element named name in the subtree rooted at n,
// n included, in document order.
func (n *Node) Descendants(name string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur.Name == name {
			out = append(out, cur)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// First returns the first element named name in document order, or nil.
func (n *Node) First(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.First(name); found != nil {
			return found
		}
	}
	return nil
}

// ParseDocument parses src as a well-formed XML document with exactly one
// root element. Non-whitespace text outside the root is an error.
func ParseDocument(src string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(src))
	dec.Strict = true

	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, cgerr.Wrap(err, cgerr.CodeProtocolParseMalformed, "decoding document")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, cgerr.New(cgerr.CodeProtocolParseMalformed, "document has more than one root element")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, cgerr.New(cgerr.CodeProtocolParseMalformed, "text outside the root element")
				}
				continue
			}
			for _, el := range stack {
				el.text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, cgerr.New(cgerr.CodeProtocolParseMalformed, "document has no root element")
	}
	return root, nil
}
