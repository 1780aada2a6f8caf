package htmlutil

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLines(t *testing.T) {
	doc, err := Parse(`<html><body>
		<a href="/c/MTIz/sp/abc"><div>E</div><div>ENG4U   English</div><span>Ms.&nbsp;Smith</span></a>
		<table><tr><td>Essay</td><td>Oct 7</td></tr></table>
		<script>var x = 1;</script>
	</body></html>`)
	require.NoError(t, err)

	got := SelectionLines(doc.Find("body"))
	expect := []string{"E", "ENG4U English", "Ms. Smith", "Essay", "Oct 7"}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestGetAnchors(t *testing.T) {
	doc, err := Parse(`<div>
		<a href=" /d2l/home/101 "><p>Math</p><p>Section 1</p></a>
		<a href="https://example.com/x?y=1">Example</a>
	</div>`)
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), doc.Find("a"))
	expect := []Anchor{
		{Name: "Math\nSection 1", Href: "/d2l/home/101"},
		{Name: "Example", Href: "https://example.com/x?y=1"},
	}
	if diff := cmp.Diff(expect, anchors); diff != "" {
		t.Fatal(diff)
	}
}

func TestResolve(t *testing.T) {
	require.Equal(t, "https://classroom.google.com/c/abc", Resolve("https://classroom.google.com/h", "/c/abc"))
	require.Equal(t, "https://other.example/x", Resolve("https://classroom.google.com", "https://other.example/x"))
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b", CleanText(" a \n\t b "))
}
