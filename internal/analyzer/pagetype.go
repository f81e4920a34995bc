package analyzer

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

const (
	priceSelector = `[class*="price"], [class*="cost"], [class*="valor"]`
	cartSelector  = `[class*="cart"], [class*="comprar"], [class*="buy"]`
)

// classifyPage assigns a coarse page type. Rules run in order and a later
// match overwrites an earlier one, so a storefront with a login form reads as
// ecommerce. No match returns "".
func classifyPage(doc *dom.Document, priceThreshold int) string {
	pageType := ""

	passwords := doc.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return inputType(s) == "password"
	})
	if passwords.Length() > 0 {
		pageType = report.PageTypeLogin
	}

	if doc.Find(priceSelector).Length() > priceThreshold || doc.Find(cartSelector).Length() > 0 {
		pageType = report.PageTypeEcommerce
	}

	return pageType
}
