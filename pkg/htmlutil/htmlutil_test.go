package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestNormalizeText(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{in: "  Cycle 1 ", expected: "Cycle 1"},
		{in: "Daily\u00a0Grades -\n 30%", expected: "Daily Grades - 30%"},
		{in: "\t\t", expected: ""},
		{in: "A\u0000B", expected: "AB"},
		{in: "Exc\u00a0\u00a0", expected: "Exc"},
		{in: "Semester\u00a01", expected: "Semester 1"},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, NormalizeText(test.in))
	}
}

func TestGetText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<table><tr><td id="x" title="t"><a href="#">9<b>5</b></a> </td></tr></table>`))
	require.NoError(t, err)

	var td *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			td = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	require.NotNil(t, td)
	require.Equal(t, "95 ", GetText(td))
	require.Equal(t, "95", NormalizeText(GetText(td)))
}
