package listing

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/dayuer/haggle-go/internal/pricing"
)

// candidate is what one extraction strategy found.
type candidate struct {
	Title     string
	PriceText string
	// CurrencyOnly restricts price parsing to currency-marked amounts.
	CurrencyOnly bool
}

type extractor struct {
	name string
	find func(doc *goquery.Document) (candidate, bool)
}

// extractors run in order; the first candidate whose price validates wins.
var extractors = []extractor{
	{"structured-data", fromJSONLD},
	{"meta-tags", fromMeta},
	{"selectors", fromSelectors},
	{"text-scan", fromText},
}

// extraction is the validated outcome of running the extractors.
type extraction struct {
	Strategy      string
	Title         string
	Price         int64
	Description   string
	Location      string
	SellerName    string
	SellerContact string
}

func extract(doc *goquery.Document) (extraction, error) {
	var rejected []string
	for _, ex := range extractors {
		c, ok := ex.find(doc)
		if !ok {
			continue
		}
		price, err := parseCandidate(c)
		if err != nil {
			rejected = append(rejected, ex.name+": "+err.Error())
			continue
		}
		out := extraction{
			Strategy: ex.name,
			Title:    c.Title,
			Price:    price,
		}
		if out.Title == "" {
			out.Title = pageTitle(doc)
		}
		out.Description = cleanText(doc.Find(`[data-aut-id="itemDescriptionText"], [itemprop="description"], .description`).First().Text())
		out.Location = cleanText(doc.Find(`[data-aut-id="item-location"], [itemprop="addressLocality"], .location`).First().Text())
		out.SellerName = cleanText(doc.Find(`[data-aut-id="sellerName"], [data-aut-id="profileCard"] .name, .seller-name`).First().Text())
		if tel, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
			out.SellerContact = strings.TrimPrefix(tel, "tel:")
		}
		return out, nil
	}
	if len(rejected) == 0 {
		return extraction{}, errors.Wrap(ErrExtractionFailure, "no price candidate found")
	}
	return extraction{}, errors.Wrapf(ErrExtractionFailure, "all candidates rejected (%s)", strings.Join(rejected, "; "))
}

func parseCandidate(c candidate) (int64, error) {
	if c.CurrencyOnly {
		return pricing.ParseCurrencyAmount(c.PriceText)
	}
	return pricing.ParseAmount(c.PriceText)
}

func fromJSONLD(doc *goquery.Document) (candidate, bool) {
	var c candidate
	found := false
	eachJSONLD(doc, func(obj map[string]any) bool {
		if !hasType(obj, "Product") && !hasType(obj, "Vehicle") && !hasType(obj, "Car") {
			return true
		}
		price := offerPrice(obj["offers"])
		if price == "" {
			return true
		}
		name, _ := obj["name"].(string)
		c = candidate{Title: cleanText(html.UnescapeString(name)), PriceText: price}
		found = true
		return false
	})
	return c, found
}

func offerPrice(v any) string {
	switch t := v.(type) {
	case []any:
		for _, o := range t {
			if p := offerPrice(o); p != "" {
				return p
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			switch p := t[key].(type) {
			case string:
				if p != "" {
					return p
				}
			case float64:
				return strconv.FormatFloat(p, 'f', -1, 64)
			}
		}
	}
	return ""
}

func fromMeta(doc *goquery.Document) (candidate, bool) {
	price, ok := doc.Find(`meta[property="product:price:amount"], meta[property="og:price:amount"]`).First().Attr("content")
	if !ok || strings.TrimSpace(price) == "" {
		return candidate{}, false
	}
	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	return candidate{Title: cleanText(title), PriceText: price}, true
}

var titleSelectors = `h1[data-aut-id="itemTitle"], h1[itemprop="name"], h1`

var priceSelectors = []string{
	`span[data-aut-id="itemPrice"]`,
	`[itemprop="price"]`,
	`.price`,
	`[class*="price"]`,
}

// fromSelectors returns the first selector match whose price parses, so a
// placeholder such as "Price on request" does not hide a later element.
func fromSelectors(doc *goquery.Document) (candidate, bool) {
	for _, sel := range priceSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		text := cleanText(s.Text())
		if v, ok := s.Attr("content"); ok && text == "" {
			text = v
		}
		if text == "" {
			continue
		}
		c := candidate{PriceText: text}
		if _, err := parseCandidate(c); err != nil {
			continue
		}
		c.Title = cleanText(doc.Find(titleSelectors).First().Text())
		return c, true
	}
	return candidate{}, false
}

// fromText scans visible body text for a currency-marked amount.
func fromText(doc *goquery.Document) (candidate, bool) {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	text := cleanText(body.Text())
	if text == "" {
		return candidate{}, false
	}
	return candidate{PriceText: text, CurrencyOnly: true}, true
}

var conditionKeywords = []struct {
	condition string
	words     []string
}{
	{ConditionPoor, []string{"not working", "damaged", "broken", "poor condition", "for parts"}},
	{ConditionExcellent, []string{"excellent", "mint", "like new", "brand new", "sealed", "unused"}},
	{ConditionGood, []string{"good condition", "well maintained", "working perfectly", "good"}},
	{ConditionFair, []string{"fair", "minor scratches", "scratches", "dents", "heavily used"}},
}

// inferCondition maps description keywords to a condition grade.
func inferCondition(description string) string {
	lower := strings.ToLower(description)
	for _, ck := range conditionKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.condition
			}
		}
	}
	return ConditionUsed
}
