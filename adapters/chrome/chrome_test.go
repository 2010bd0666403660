package chrome

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-port-bus/dynamicui"
	"github.com/next-trace/scg-port-bus/tabs"
)

func TestPageTabs_FirstPageIsActive(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "sw", Type: "service_worker", URL: "chrome-extension://x/sw.js"},
		{TargetID: "a", Type: targetTypePage, Title: "A", URL: "https://a.example"},
		{TargetID: "b", Type: targetTypePage, Title: "B", URL: "https://b.example"},
	}
	windows := map[target.ID]browser.WindowID{"a": 7, "b": 9}

	all, current := pageTabs(infos, windows)

	require.Len(t, all, 2)
	assert.Equal(t, "7", current)
	assert.Equal(t, tabs.Tab{ID: "a", WindowID: "7", Title: "A", URL: "https://a.example", Active: true}, all[0])
	assert.False(t, all[1].Active)
	assert.Equal(t, "9", all[1].WindowID)

	got := tabs.Filter(all, tabs.Query{Active: true, CurrentWindow: true}, current)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestPageTabs_NoPages(t *testing.T) {
	all, current := pageTabs([]*target.Info{{TargetID: "x", Type: "browser"}}, nil)

	assert.Empty(t, all)
	assert.Empty(t, current)
}

// document(1) > body(2) > [list(3) > item(4)]
func sampleDoc() *cdp.Node {
	return &cdp.Node{NodeID: 1, NodeName: "#document", Children: []*cdp.Node{
		{NodeID: 2, NodeName: "BODY", Children: []*cdp.Node{
			{NodeID: 3, NodeName: "UL", Attributes: []string{"class", "list"}, Children: []*cdp.Node{
				{NodeID: 4, NodeName: "LI"},
			}},
		}},
	}}
}

func newSampleTree(root cdp.NodeID, opts dynamicui.WatchOptions) *tree {
	tr := newTree(root, dynamicui.Node{ID: "#main"}, opts)
	tr.index(sampleDoc(), 0)

	return tr
}

func TestTree_ChildInsertedOnTarget(t *testing.T) {
	tr := newSampleTree(2, dynamicui.WatchOptions{ChildList: true})

	m, ok := tr.translate(&dom.EventChildNodeInserted{
		ParentNodeID: 2,
		Node:         &cdp.Node{NodeID: 10, NodeName: "DIV"},
	})

	require.True(t, ok)
	assert.Equal(t, dynamicui.ChildList, m.Type)
	assert.Equal(t, dynamicui.Node{ID: "#main"}, m.Target)
	assert.Equal(t, []dynamicui.Node{{ID: "10", Name: "DIV"}}, m.Added)
}

func TestTree_SubtreeRequiresFlag(t *testing.T) {
	ev := &dom.EventChildNodeInserted{ParentNodeID: 3, Node: &cdp.Node{NodeID: 11, NodeName: "LI"}}

	_, ok := newSampleTree(2, dynamicui.WatchOptions{ChildList: true}).translate(ev)
	assert.False(t, ok)

	m, ok := newSampleTree(2, dynamicui.WatchOptions{ChildList: true, Subtree: true}).translate(ev)
	require.True(t, ok)
	assert.Equal(t, dynamicui.Node{ID: "3", Name: "UL"}, m.Target)
}

func TestTree_ChildRemovedForgetsSubtree(t *testing.T) {
	tr := newSampleTree(2, dynamicui.WatchOptions{ChildList: true, Subtree: true})

	m, ok := tr.translate(&dom.EventChildNodeRemoved{ParentNodeID: 2, NodeID: 3})
	require.True(t, ok)
	assert.Equal(t, []dynamicui.Node{{ID: "3", Name: "UL"}}, m.Removed)

	_, known := tr.parent[4]
	assert.False(t, known)

	_, ok = tr.translate(&dom.EventChildNodeRemoved{ParentNodeID: 3, NodeID: 4})
	assert.False(t, ok)
}

func TestTree_SetChildNodesExtendsMirror(t *testing.T) {
	tr := newSampleTree(2, dynamicui.WatchOptions{ChildList: true, Subtree: true})

	_, ok := tr.translate(&dom.EventSetChildNodes{ParentID: 4, Nodes: []*cdp.Node{{NodeID: 20, NodeName: "SPAN"}}})
	assert.False(t, ok)

	m, ok := tr.translate(&dom.EventChildNodeInserted{ParentNodeID: 20, Node: &cdp.Node{NodeID: 21, NodeName: "B"}})
	require.True(t, ok)
	assert.Equal(t, "20", m.Target.ID)
}

func TestTree_Attributes(t *testing.T) {
	tr := newSampleTree(3, dynamicui.WatchOptions{
		Attributes:        true,
		AttributeFilter:   []string{"class"},
		AttributeOldValue: true,
	})

	m, ok := tr.translate(&dom.EventAttributeModified{NodeID: 3, Name: "class", Value: "list open"})
	require.True(t, ok)
	assert.Equal(t, dynamicui.Attributes, m.Type)
	assert.Equal(t, "class", m.AttributeName)
	assert.Equal(t, "list", m.OldValue)

	_, ok = tr.translate(&dom.EventAttributeModified{NodeID: 3, Name: "id", Value: "x"})
	assert.False(t, ok)

	m, ok = tr.translate(&dom.EventAttributeRemoved{NodeID: 3, Name: "class"})
	require.True(t, ok)
	assert.Equal(t, "list open", m.OldValue)
}

func TestTree_CharacterData(t *testing.T) {
	tr := newSampleTree(2, dynamicui.WatchOptions{CharacterData: true, Subtree: true})

	_, ok := tr.translate(&dom.EventCharacterDataModified{NodeID: 4, CharacterData: "hello"})
	require.True(t, ok)

	m, ok := tr.translate(&dom.EventCharacterDataModified{NodeID: 4, CharacterData: "bye"})
	require.True(t, ok)
	assert.Empty(t, m.OldValue)
}

func TestTree_IgnoresUnknownEvents(t *testing.T) {
	tr := newSampleTree(1, dynamicui.WatchOptions{ChildList: true, Attributes: true, CharacterData: true})

	_, ok := tr.translate(&dom.EventDocumentUpdated{})
	assert.False(t, ok)
}

func TestExpand_LogsFetchFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var asked cdp.NodeID

	expand(t.Context(), logger, "tab-1", 42, func(_ context.Context, id cdp.NodeID) error {
		asked = id
		return errors.New("node detached")
	})

	assert.Equal(t, cdp.NodeID(42), asked)
	assert.Contains(t, buf.String(), "requesting inserted subtree failed")
	assert.Contains(t, buf.String(), "node=42")
	assert.Contains(t, buf.String(), "node detached")

	buf.Reset()
	expand(t.Context(), logger, "tab-1", 43, func(context.Context, cdp.NodeID) error { return nil })
	assert.Empty(t, buf.String())
}
