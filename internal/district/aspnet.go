package district

import (
	"gradespeed-backend/internal/dom"
)

// ParseInputs collects the name and value of every named input of a page,
// this is how ASP.NET page state like __VIEWSTATE and __EVENTVALIDATION is
// carried from one request to the next.
func ParseInputs(doc dom.Node) map[string]string {
	out := map[string]string{}
	for _, input := range doc.FindTag("input") {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			continue
		}
		out[name] = dom.AttrOr(input, "value", "")
	}
	return out
}
