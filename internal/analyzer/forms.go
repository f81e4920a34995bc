package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

const (
	noAction      = "no-action"
	defaultMethod = "GET"
	unnamedField  = "unnamed"
)

// inputTypes are the type keywords an <input> reflects; anything else reads
// back as "text".
var inputTypes = map[string]bool{
	"hidden": true, "text": true, "search": true, "tel": true, "url": true,
	"email": true, "password": true, "date": true, "month": true, "week": true,
	"time": true, "datetime-local": true, "number": true, "range": true,
	"color": true, "checkbox": true, "radio": true, "file": true,
	"submit": true, "image": true, "reset": true, "button": true,
}

// analyzeForms counts every form and details those with at least one
// non-hidden field.
func analyzeForms(doc *dom.Document) (int, []report.FormDetail) {
	forms := doc.Find("form")
	details := make([]report.FormDetail, 0)

	forms.Each(func(i int, form *goquery.Selection) {
		fields := make([]report.FieldDetail, 0)
		form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
			typ := fieldType(field)
			if typ == "hidden" {
				return
			}
			fields = append(fields, report.FieldDetail{
				Type:        typ,
				Name:        fieldName(field),
				Placeholder: fieldPlaceholder(field),
				Required:    dom.HasAttr(field, "required"),
			})
		})

		if len(fields) == 0 {
			return
		}
		details = append(details, report.FormDetail{
			Index:  i,
			Action: formAction(doc, form),
			Method: formMethod(form),
			Fields: fields,
		})
	})

	return forms.Length(), details
}

// fieldType mirrors the element's type property.
func fieldType(field *goquery.Selection) string {
	switch tag := dom.TagName(field); tag {
	case "input":
		if t := inputType(field); inputTypes[t] {
			return t
		}
		return "text"
	case "select":
		if dom.HasAttr(field, "multiple") {
			return "select-multiple"
		}
		return "select-one"
	default:
		return tag
	}
}

// inputType is the lower-cased, trimmed type attribute.
func inputType(s *goquery.Selection) string {
	return strings.ToLower(strings.TrimSpace(dom.AttrOr(s, "type", "")))
}

func fieldName(field *goquery.Selection) string {
	if name := dom.AttrOr(field, "name", ""); name != "" {
		return name
	}
	return dom.AttrOr(field, "id", unnamedField)
}

// fieldPlaceholder is empty for selects, which have no placeholder property.
func fieldPlaceholder(field *goquery.Selection) string {
	if dom.TagName(field) == "select" {
		return ""
	}
	return dom.AttrOr(field, "placeholder", "")
}

// formAction resolves a non-empty action attribute against the document.
func formAction(doc *dom.Document, form *goquery.Selection) string {
	action := strings.TrimSpace(dom.AttrOr(form, "action", ""))
	if action == "" {
		return noAction
	}
	return doc.ResolveURL(action)
}

// formMethod reflects a present method attribute the way the browser does
// (lower-cased, unknown values read as "get") and defaults to GET otherwise.
func formMethod(form *goquery.Selection) string {
	raw, ok := dom.Attr(form, "method")
	if !ok {
		return defaultMethod
	}
	switch m := strings.ToLower(strings.TrimSpace(raw)); m {
	case "get", "post", "dialog":
		return m
	default:
		return "get"
	}
}
