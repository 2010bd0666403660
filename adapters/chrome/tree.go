package chrome

import (
	"slices"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"

	"github.com/next-trace/scg-port-bus/dynamicui"
)

// tree mirrors the part of the DOM the browser has pushed to us and turns
// DOM domain events into mutations for one observed node.
type tree struct {
	root   cdp.NodeID
	target dynamicui.Node
	opts   dynamicui.WatchOptions

	parent map[cdp.NodeID]cdp.NodeID
	names  map[cdp.NodeID]string
	attrs  map[cdp.NodeID]map[string]string
	values map[cdp.NodeID]string
}

func newTree(root cdp.NodeID, target dynamicui.Node, opts dynamicui.WatchOptions) *tree {
	return &tree{
		root:   root,
		target: target,
		opts:   opts,
		parent: make(map[cdp.NodeID]cdp.NodeID),
		names:  make(map[cdp.NodeID]string),
		attrs:  make(map[cdp.NodeID]map[string]string),
		values: make(map[cdp.NodeID]string),
	}
}

func (t *tree) index(n *cdp.Node, parent cdp.NodeID) {
	if n == nil {
		return
	}

	t.parent[n.NodeID] = parent
	t.names[n.NodeID] = n.NodeName
	t.values[n.NodeID] = n.NodeValue

	if len(n.Attributes) > 0 {
		a := make(map[string]string, len(n.Attributes)/2)
		for i := 0; i+1 < len(n.Attributes); i += 2 {
			a[n.Attributes[i]] = n.Attributes[i+1]
		}

		t.attrs[n.NodeID] = a
	}

	for _, c := range n.Children {
		t.index(c, n.NodeID)
	}
}

func (t *tree) forget(id cdp.NodeID) {
	for child, p := range t.parent {
		if p == id {
			t.forget(child)
		}
	}

	delete(t.parent, id)
	delete(t.names, id)
	delete(t.attrs, id)
	delete(t.values, id)
}

func (t *tree) node(id cdp.NodeID) dynamicui.Node {
	if id == t.root {
		return t.target
	}

	return dynamicui.Node{ID: strconv.FormatInt(int64(id), 10), Name: t.names[id]}
}

// within reports whether a change on id is visible to the observer.
func (t *tree) within(id cdp.NodeID) bool {
	if id == t.root {
		return true
	}

	if !t.opts.Subtree {
		return false
	}

	for seen := 0; seen <= len(t.parent); seen++ {
		p, ok := t.parent[id]
		if !ok {
			return false
		}

		if p == t.root {
			return true
		}

		id = p
	}

	return false
}

// translate updates the mirror and returns the mutation ev represents, if the
// observer wants it.
func (t *tree) translate(ev any) (dynamicui.Mutation, bool) {
	switch ev := ev.(type) {
	case *dom.EventSetChildNodes:
		for _, n := range ev.Nodes {
			t.index(n, ev.ParentID)
		}

	case *dom.EventChildNodeInserted:
		t.index(ev.Node, ev.ParentNodeID)

		if ev.Node == nil || !t.opts.ChildList || !t.within(ev.ParentNodeID) {
			return dynamicui.Mutation{}, false
		}

		return dynamicui.Mutation{
			Type:   dynamicui.ChildList,
			Target: t.node(ev.ParentNodeID),
			Added:  []dynamicui.Node{t.node(ev.Node.NodeID)},
		}, true

	case *dom.EventChildNodeRemoved:
		removed := t.node(ev.NodeID)
		wanted := t.opts.ChildList && t.within(ev.ParentNodeID)

		t.forget(ev.NodeID)

		if !wanted {
			return dynamicui.Mutation{}, false
		}

		return dynamicui.Mutation{
			Type:    dynamicui.ChildList,
			Target:  t.node(ev.ParentNodeID),
			Removed: []dynamicui.Node{removed},
		}, true

	case *dom.EventAttributeModified:
		return t.attribute(ev.NodeID, ev.Name, ev.Value, true)

	case *dom.EventAttributeRemoved:
		return t.attribute(ev.NodeID, ev.Name, "", false)

	case *dom.EventCharacterDataModified:
		old := t.values[ev.NodeID]
		t.values[ev.NodeID] = ev.CharacterData

		if !t.opts.CharacterData || !t.within(ev.NodeID) {
			return dynamicui.Mutation{}, false
		}

		m := dynamicui.Mutation{Type: dynamicui.CharacterData, Target: t.node(ev.NodeID)}
		if t.opts.CharacterDataOldValue {
			m.OldValue = old
		}

		return m, true
	}

	return dynamicui.Mutation{}, false
}

func (t *tree) attribute(id cdp.NodeID, name, value string, set bool) (dynamicui.Mutation, bool) {
	a := t.attrs[id]
	if a == nil {
		a = make(map[string]string)
		t.attrs[id] = a
	}

	old := a[name]
	if set {
		a[name] = value
	} else {
		delete(a, name)
	}

	if !t.opts.Attributes || !t.within(id) {
		return dynamicui.Mutation{}, false
	}

	if len(t.opts.AttributeFilter) > 0 && !slices.Contains(t.opts.AttributeFilter, name) {
		return dynamicui.Mutation{}, false
	}

	m := dynamicui.Mutation{Type: dynamicui.Attributes, Target: t.node(id), AttributeName: name}
	if t.opts.AttributeOldValue {
		m.OldValue = old
	}

	return m, true
}
