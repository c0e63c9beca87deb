package listing

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const maxTitleRunes = 200

var gridMarkers = []string{
	`[data-aut-id="itemsList"]`,
	`li[data-aut-id="itemBox"]`,
	`.items-grid`,
	`[data-testid="search-results"]`,
}

// priceMarkers appear once on an item page.
var priceMarkers = []string{
	`[data-aut-id="itemPrice"]`,
	`[itemprop="price"]`,
	`.price`,
}

var resultsTitleRe = regexp.MustCompile(`(?i)\b\d[\d,]*\+?\s+(ads|results|listings|items)\b`)

// classify rejects search and category pages. A genuine item page has one
// canonical price element, no item grid and a title of reasonable shape.
func classify(doc *goquery.Document) error {
	for _, sel := range gridMarkers {
		if doc.Find(sel).Length() > 0 {
			return errors.Wrapf(ErrExtractionFailure, "item grid marker %s present", sel)
		}
	}
	for _, sel := range priceMarkers {
		if n := doc.Find(sel).Length(); n > 1 {
			return errors.Wrapf(ErrExtractionFailure, "%d %s price elements", n, sel)
		}
	}
	if hasItemList(doc) {
		return errors.Wrap(ErrExtractionFailure, "structured data describes an item list")
	}

	title := pageTitle(doc)
	switch {
	case title == "":
		return errors.Wrap(ErrExtractionFailure, "page has no title")
	case utf8.RuneCountInString(title) > maxTitleRunes:
		return errors.Wrap(ErrExtractionFailure, "title too long for an item page")
	case resultsTitleRe.MatchString(title):
		return errors.Wrapf(ErrExtractionFailure, "title %q looks like a results page", title)
	}
	return nil
}

func hasItemList(doc *goquery.Document) bool {
	found := false
	eachJSONLD(doc, func(obj map[string]any) bool {
		if hasType(obj, "ItemList") || hasType(obj, "SearchResultsPage") {
			found = true
			return false
		}
		return true
	})
	return found
}

// pageTitle picks the most specific title on the page.
func pageTitle(doc *goquery.Document) string {
	if t := cleanText(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return cleanText(t)
	}
	return cleanText(doc.Find("title").First().Text())
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// eachJSONLD walks every object in every ld+json block, including @graph
// members, until fn returns false.
func eachJSONLD(doc *goquery.Document, fn func(map[string]any) bool) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		return walkJSONLD(v, fn)
	})
}

func walkJSONLD(v any, fn func(map[string]any) bool) bool {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if !walkJSONLD(item, fn) {
				return false
			}
		}
	case map[string]any:
		if !fn(t) {
			return false
		}
		if g, ok := t["@graph"]; ok {
			return walkJSONLD(g, fn)
		}
	}
	return true
}

func hasType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}
