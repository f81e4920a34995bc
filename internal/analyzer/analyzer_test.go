package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/report"
)

const pageURL = "https://example.com/account/login"

func mustParse(t *testing.T, markup string, opts ...dom.Option) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(pageURL, markup, opts...)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func mustAnalyze(t *testing.T, doc *dom.Document) *report.PageAnalysisReport {
	t.Helper()
	r, err := Analyze(doc)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	return r
}

const mixedPage = `<html><head><title>  Mixed
	page </title></head><body>
<form id="search">
	<input type="search" name="q" placeholder="Search" required>
	<select name="sort" multiple></select>
	<textarea id="notes"></textarea>
	<button type="submit">Go</button>
</form>
<form><input type="hidden" name="token"></form>
<input type="text" name="standalone">
<input type="hidden" name="secret">
<textarea></textarea>
<a href="/api/v1/docs">API docs</a>
<a href="/files/report.csv">Download CSV</a>
<a href="/about">About</a>
<div role="button">Role</div>
<span class="btn primary">Span</span>
<input type="submit" value="Send">
<table><tr><td>layout</td></tr></table>
</body></html>`

// =============================================================================
// Orchestrator Tests
// =============================================================================

func TestAnalyze_MixedPage(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, mixedPage))

	if r.URL != pageURL {
		t.Errorf("URL = %q, want %q", r.URL, pageURL)
	}
	if r.Title != "Mixed page" {
		t.Errorf("Title = %q, want %q", r.Title, "Mixed page")
	}

	counts := map[string][2]int{
		"forms":   {r.Forms, 2},
		"buttons": {r.Buttons, 4},
		"inputs":  {r.Inputs, 3},
		"links":   {r.Links, 2},
		"tables":  {r.Tables, 1},
	}
	for name, c := range counts {
		if c[0] != c[1] {
			t.Errorf("%s = %d, want %d", name, c[0], c[1])
		}
	}
	if r.ElementCount != 12 {
		t.Errorf("ElementCount = %d, want 12", r.ElementCount)
	}

	wantLinks := []report.ImportantElementRef{
		report.LinkElement("API docs", "https://example.com/api/v1/docs"),
		report.LinkElement("Download CSV", "https://example.com/files/report.csv"),
	}
	if !reflect.DeepEqual(r.Details.ImportantElements, wantLinks) {
		t.Errorf("ImportantElements = %+v, want %+v", r.Details.ImportantElements, wantLinks)
	}
}

func TestAnalyze_ElementCountInvariant(t *testing.T) {
	pages := []string{
		``,
		mixedPage,
		`<table><th>a</th></table><table></table><button>x</button><a href="/export">e</a>`,
		`<form><input type="password"></form><input><input><div class="button btn"></div>`,
	}

	for i, markup := range pages {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			r := mustAnalyze(t, mustParse(t, markup))
			if r.ElementCount != r.Forms+r.Buttons+r.Inputs+r.Links+r.Tables {
				t.Errorf("ElementCount = %d, parts = %d+%d+%d+%d+%d",
					r.ElementCount, r.Forms, r.Buttons, r.Inputs, r.Links, r.Tables)
			}
			if r.ElementCount != r.ComputedElementCount() {
				t.Error("ComputedElementCount() disagrees")
			}
		})
	}
}

func TestAnalyze_EmptyDocument(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, ``))

	if r.ElementCount != 0 || r.Forms != 0 || r.Buttons != 0 || r.Inputs != 0 || r.Links != 0 || r.Tables != 0 {
		t.Errorf("counts should all be 0: %+v", r)
	}
	if r.Details.Forms == nil || len(r.Details.Forms) != 0 {
		t.Errorf("Details.Forms = %#v, want []", r.Details.Forms)
	}
	if r.APIs.Endpoints == nil || len(r.APIs.Endpoints) != 0 {
		t.Errorf("APIs.Endpoints = %#v, want []", r.APIs.Endpoints)
	}
	if r.Details.PageType != "" {
		t.Errorf("PageType = %q, want unset", r.Details.PageType)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	for _, absent := range []string{"pageType", "detectedAPIs"} {
		if strings.Contains(out, absent) {
			t.Errorf("JSON should omit %s: %s", absent, out)
		}
	}
	for _, present := range []string{`"endpoints":[]`, `"forms":[]`, `"charts":[]`, `"importantElements":[]`} {
		if !strings.Contains(out, present) {
			t.Errorf("JSON missing %s: %s", present, out)
		}
	}
}

func TestAnalyze_InvalidDocument(t *testing.T) {
	_, err := Analyze(nil)
	if err == nil {
		t.Fatal("Analyze(nil) should fail")
	}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("error = %v, want ErrInvalidDocument", err)
	}

	var empty dom.Document
	if _, err := Analyze(&empty); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("zero Document error = %v, want ErrInvalidDocument", err)
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	doc := mustParse(t, mixedPage+`<script>fetch('/api/users'); save("/api/orders")</script>`)

	first := mustAnalyze(t, doc)
	second := mustAnalyze(t, doc)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\n%+v\n%+v", first, second)
	}
}

func TestAnalyze_DoesNotMutateDocument(t *testing.T) {
	doc := mustParse(t, mixedPage)
	before, _ := doc.OuterHTML()
	mustAnalyze(t, doc)
	after, _ := doc.OuterHTML()
	if before != after {
		t.Error("analysis changed the document")
	}
}

func TestAnalyze_DuplicateFetch(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, `<script>fetch('/api/users'); fetch("/api/users");</script>`))

	want := []report.EndpointRef{{URL: "/api/users", Method: "GET"}}
	if !reflect.DeepEqual(r.APIs.Endpoints, want) {
		t.Errorf("Endpoints = %+v, want %+v", r.APIs.Endpoints, want)
	}
}

func TestAnalyze_MethodInference(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, `<script>axios.post('/api/orders', payload)</script>`))

	if len(r.APIs.Endpoints) != 1 || r.APIs.Endpoints[0].Method != "POST" {
		t.Errorf("Endpoints = %+v, want /api/orders POST", r.APIs.Endpoints)
	}
}

func TestAnalyze_UniqueURLs(t *testing.T) {
	markup := `<script>
		fetch('/api/a'); fetch('/api/b'); remove('/api/a');
		hook("/webhook/x/1"); hook('/webhook/x/1');
		var cfg = { apiUrl: "/api/a" };
	</script><a data-x="/api/b">b</a>`
	r := mustAnalyze(t, mustParse(t, markup))

	for name, list := range map[string][]report.EndpointRef{"endpoints": r.APIs.Endpoints, "webhooks": r.APIs.Webhooks} {
		seen := make(map[string]bool)
		for _, e := range list {
			if seen[e.URL] {
				t.Errorf("%s contains duplicate %s", name, e.URL)
			}
			seen[e.URL] = true
		}
	}
	if len(r.APIs.Endpoints) != 2 || len(r.APIs.Webhooks) != 1 {
		t.Errorf("APIs = %+v", r.APIs)
	}
}

func TestAnalyzer_ExtractAPIs(t *testing.T) {
	a := New()
	apis, err := a.ExtractAPIs(mustParse(t, `<script>fetch("/api/users")</script>`))
	if err != nil {
		t.Fatalf("ExtractAPIs() error = %v", err)
	}
	if len(apis.Endpoints) != 1 {
		t.Errorf("Endpoints = %+v", apis.Endpoints)
	}

	if _, err := a.ExtractAPIs(nil); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("ExtractAPIs(nil) error = %v, want ErrInvalidDocument", err)
	}
}

// =============================================================================
// Section Failure Tests
// =============================================================================

func TestRun_SectionPanicDegradesOnlyThatSection(t *testing.T) {
	m := metrics.New()
	a := New(WithMetrics(m))
	for i := range a.sections {
		if a.sections[i].name == SectionForms {
			a.sections[i].run = func(*Analyzer, *dom.Document, *report.PageAnalysisReport) {
				var fields []report.FieldDetail
				_ = fields[3]
			}
		}
	}

	res, err := a.Run(mustParse(t, mixedPage))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	r := res.Report
	if r.Forms != 0 || r.Details.Forms == nil || len(r.Details.Forms) != 0 {
		t.Errorf("forms section should be at defaults: forms=%d details=%#v", r.Forms, r.Details.Forms)
	}
	if r.Buttons != 4 || r.Tables != 1 {
		t.Errorf("other sections should be intact: buttons=%d tables=%d", r.Buttons, r.Tables)
	}
	if r.ElementCount != r.ComputedElementCount() {
		t.Error("ElementCount invariant broken after a section failure")
	}

	if len(res.Degraded) != 1 || res.Degraded[0].Operation != SectionForms {
		t.Fatalf("Degraded = %+v, want one forms failure", res.Degraded)
	}
	if got := m.Snapshot().SectionFailures[SectionForms]; got != 1 {
		t.Errorf("SectionFailures[forms] = %d, want 1", got)
	}
}

func TestRun_PartialSectionWritesAreDiscarded(t *testing.T) {
	a := New()
	for i := range a.sections {
		if a.sections[i].name == SectionVisual {
			a.sections[i].run = func(_ *Analyzer, _ *dom.Document, r *report.PageAnalysisReport) {
				visuals := report.NewVisualElements()
				visuals.Charts = append(visuals.Charts, report.VisualElementRef{ID: "half"})
				panic("malformed class name")
			}
		}
	}

	res, err := a.Run(mustParse(t, `<canvas data-chart-type="bar"></canvas>`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Report.VisualElements.Charts) != 0 {
		t.Errorf("Charts = %+v, want none", res.Report.VisualElements.Charts)
	}
	if len(res.Degraded) != 1 || res.Degraded[0].Message != "malformed class name" {
		t.Errorf("Degraded = %+v", res.Degraded)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	a := New(WithMetrics(m))

	if _, err := a.Run(mustParse(t, `<form><input name="a"></form><script>fetch('/api/x')</script>`)); err != nil {
		t.Fatal(err)
	}
	_, _ = a.Run(nil)

	snap := m.Snapshot()
	if snap.AnalysesTotal != 1 || snap.AnalysesFailed != 1 {
		t.Errorf("analyses = %d ok / %d failed, want 1/1", snap.AnalysesTotal, snap.AnalysesFailed)
	}
	if snap.FormsFound != 1 || snap.EndpointsFound != 1 {
		t.Errorf("found = %d forms / %d endpoints, want 1/1", snap.FormsFound, snap.EndpointsFound)
	}
}

// =============================================================================
// Form Tests
// =============================================================================

func TestForms_LoginScenario(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, `<form action="/session" method="POST">
		<input type="text" name="user">
		<input type="password" id="pw">
		<input type="hidden" name="csrf" value="t0k3n">
	</form>`))

	if r.Forms != 1 {
		t.Errorf("Forms = %d, want 1", r.Forms)
	}
	if r.Details.PageType != report.PageTypeLogin {
		t.Errorf("PageType = %q, want login", r.Details.PageType)
	}
	if len(r.Details.Forms) != 1 {
		t.Fatalf("Details.Forms = %+v", r.Details.Forms)
	}

	want := report.FormDetail{
		Index:  0,
		Action: "https://example.com/session",
		Method: "post",
		Fields: []report.FieldDetail{
			{Type: "text", Name: "user"},
			{Type: "password", Name: "pw"},
		},
	}
	if !reflect.DeepEqual(r.Details.Forms[0], want) {
		t.Errorf("form = %+v, want %+v", r.Details.Forms[0], want)
	}
}

func TestForms_HiddenOnlyFormIsCountedNotDetailed(t *testing.T) {
	r := mustAnalyze(t, mustParse(t, `
		<form><input type="hidden" name="a"><input type="HIDDEN" name="b"></form>
		<form><input name="visible"></form>`))

	if r.Forms != 2 {
		t.Errorf("Forms = %d, want 2", r.Forms)
	}
	if len(r.Details.Forms) != 1 || r.Details.Forms[0].Index != 1 {
		t.Fatalf("Details.Forms = %+v, want only the form at index 1", r.Details.Forms)
	}
	for _, f := range r.Details.Forms {
		for _, field := range f.Fields {
			if field.Type == "hidden" {
				t.Errorf("hidden field surfaced: %+v", field)
			}
		}
	}
}

func TestForms_FieldDefaults(t *testing.T) {
	_, details := analyzeForms(mustParse(t, mixedPage+`<form><input type="bogus"><input id="only-id" type="Email"></form>`))

	if len(details) != 2 {
		t.Fatalf("details = %+v", details)
	}

	wantSearch := []report.FieldDetail{
		{Type: "search", Name: "q", Placeholder: "Search", Required: true},
		{Type: "select-multiple", Name: "sort"},
		{Type: "textarea", Name: "notes"},
	}
	if !reflect.DeepEqual(details[0].Fields, wantSearch) {
		t.Errorf("fields = %+v, want %+v", details[0].Fields, wantSearch)
	}

	wantLast := []report.FieldDetail{
		{Type: "text", Name: "unnamed"},
		{Type: "email", Name: "only-id"},
	}
	if !reflect.DeepEqual(details[1].Fields, wantLast) {
		t.Errorf("fields = %+v, want %+v", details[1].Fields, wantLast)
	}
	if details[1].Index != 2 {
		t.Errorf("Index = %d, want 2", details[1].Index)
	}
}

func TestForms_ActionAndMethod(t *testing.T) {
	tests := []struct {
		name       string
		form       string
		wantAction string
		wantMethod string
	}{
		{"no attributes", `<form>`, "no-action", "GET"},
		{"empty action", `<form action="">`, "no-action", "GET"},
		{"relative action", `<form action="../search?q=1" method="get">`, "https://example.com/search?q=1", "get"},
		{"absolute action", `<form action="https://api.example.org/submit" method="Post">`, "https://api.example.org/submit", "post"},
		{"unknown method", `<form action="/x" method="PUT">`, "https://example.com/x", "get"},
		{"dialog", `<form method="dialog">`, "no-action", "dialog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, details := analyzeForms(mustParse(t, tt.form+`<input name="f"></form>`))
			if len(details) != 1 {
				t.Fatalf("details = %+v", details)
			}
			if details[0].Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", details[0].Action, tt.wantAction)
			}
			if details[0].Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", details[0].Method, tt.wantMethod)
			}
		})
	}
}

// =============================================================================
// Control & Link Tests
// =============================================================================

func TestControls_Buttons(t *testing.T) {
	tests := []struct {
		markup string
		want   int
	}{
		{`<button>a</button>`, 1},
		{`<input type="button"><input type="SUBMIT"><input type="reset">`, 2},
		{`<div role="button"></div><div role="link"></div>`, 1},
		{`<a class="btn">x</a><a class="button">y</a><a class="btn-primary">z</a>`, 2},
		{`<button class="btn" role="button">counted once</button>`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.markup, func(t *testing.T) {
			if got := countButtons(mustParse(t, tt.markup)); got != tt.want {
				t.Errorf("countButtons() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestControls_StandaloneInputs(t *testing.T) {
	doc := mustParse(t, `
		<form><input name="in-form"><div><select></select></div></form>
		<input name="a"><input type="hidden"><select></select><textarea></textarea>`)

	if got := countStandaloneInputs(doc); got != 3 {
		t.Errorf("countStandaloneInputs() = %d, want 3", got)
	}
}

func TestControls_LinkSampling(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, `<a href="/export/%d">%s</a>`, i, strings.Repeat("é", 60))
	}
	b.WriteString(`<a href="/API/upper">case-sensitive</a><a>no href</a>`)

	count, samples := analyzeLinks(mustParse(t, b.String()), 5, 50)

	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
	if len(samples) != 5 {
		t.Fatalf("len(samples) = %d, want 5", len(samples))
	}
	for i, s := range samples {
		if s.Type != report.ElementTypeLink {
			t.Errorf("samples[%d].Type = %q", i, s.Type)
		}
		if n := len([]rune(s.Text)); n != 50 {
			t.Errorf("samples[%d] text has %d runes, want 50", i, n)
		}
		if want := fmt.Sprintf("https://example.com/export/%d", i); s.Href != want {
			t.Errorf("samples[%d].Href = %q, want %q", i, s.Href, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 50, "short"},
		{"abcdef", 3, "abc"},
		{"ñandú", 2, "ña"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// =============================================================================
// Table Tests
// =============================================================================

func TestTables_Sampling(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<table><tr><th>H%d</th></tr><tr><td>v</td></tr></table>`, i)
	}
	r := mustAnalyze(t, mustParse(t, b.String()))

	if r.Tables != 5 {
		t.Errorf("Tables = %d, want 5", r.Tables)
	}
	tables := 0
	for _, el := range r.Details.ImportantElements {
		if el.Type == report.ElementTypeTable {
			tables++
		}
	}
	if tables > 3 {
		t.Errorf("%d tables detailed, want at most 3", tables)
	}
}

func TestTables_Details(t *testing.T) {
	markup := `
		<table><tr><td>layout only</td></tr></table>
		<table><tr><td>1</td></tr><tr><td>2</td></tr></table>
		<table><tr><th> A </th><th>B</th><th>C</th><th>D</th><th>E</th><th>F</th></tr></table>
		<table><tr><th>never sampled</th></tr></table>`

	count, samples := analyzeTables(mustParse(t, markup), 3, 5)

	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	want := []report.ImportantElementRef{
		report.TableElement(nil, 2),
		report.TableElement([]string{"A", "B", "C", "D", "E"}, 1),
	}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("samples = %+v, want %+v", samples, want)
	}
}

// =============================================================================
// Page Type Tests
// =============================================================================

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"nothing", `<p>hello</p>`, ""},
		{"login", `<input type="password">`, report.PageTypeLogin},
		{"login upper-case type", `<input type="PASSWORD">`, report.PageTypeLogin},
		{"three prices", `<i class="price"></i><i class="price"></i><i class="cost"></i>`, ""},
		{"four prices", `<i class="price"></i><i class="old-price"></i><i class="cost"></i><i class="valor"></i>`, report.PageTypeEcommerce},
		{"cart", `<button class="add-to-cart">+</button>`, report.PageTypeEcommerce},
		{"buy", `<a class="buy-now">buy</a>`, report.PageTypeEcommerce},
		{"login on storefront", `<input type="password"><div class="cart"></div>`, report.PageTypeEcommerce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyPage(mustParse(t, tt.markup), 3); got != tt.want {
				t.Errorf("classifyPage() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Visual Element Tests
// =============================================================================

func TestVisual_DashboardDensity(t *testing.T) {
	tests := []struct {
		children int
		want     int
	}{
		{15, 1},
		{11, 1},
		{10, 0},
		{5, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.children), func(t *testing.T) {
			markup := `<div class="widget-panel">` + strings.Repeat("<span></span>", tt.children) + `</div>`
			r := mustAnalyze(t, mustParse(t, markup))

			if got := len(r.VisualElements.Dashboards); got != tt.want {
				t.Fatalf("dashboards = %d, want %d", got, tt.want)
			}
			if tt.want == 1 {
				d := r.VisualElements.Dashboards[0]
				if d.ID != ".widget-panel" {
					t.Errorf("ID = %q, want .widget-panel", d.ID)
				}
				if d.Children == nil || *d.Children != tt.children {
					t.Errorf("Children = %v, want %d", d.Children, tt.children)
				}
			}
		})
	}
}

func TestVisual_DashboardPosition(t *testing.T) {
	// document order: html, head, body, div
	layout := dom.Layout{{}, {}, {}, {Top: 120, Left: 10, Width: 300, Height: 200}}
	doc := mustParse(t, `<div id="main-dashboard">`+strings.Repeat("<p></p>", 12)+`</div>`, dom.WithLayout(layout))

	visuals := detectVisualElements(doc, DefaultConfig())
	if len(visuals.Dashboards) != 1 {
		t.Fatalf("Dashboards = %+v", visuals.Dashboards)
	}
	d := visuals.Dashboards[0]
	if d.ID != "main-dashboard" {
		t.Errorf("ID = %q, want the raw id", d.ID)
	}
	want := report.BoundingBox{Top: 120, Left: 10, Width: 300, Height: 200}
	if d.Position != want {
		t.Errorf("Position = %+v, want %+v", d.Position, want)
	}
}

func TestVisual_Charts(t *testing.T) {
	markup := `
		<div class="Chart-Container"><canvas id="sales" width="400"></canvas></div>
		<div><canvas data-chart-type="bar" height="80"></canvas></div>
		<div><canvas data-chart-type=""></canvas></div>
		<div class="hero"><canvas class="bg"></canvas></div>`

	visuals := detectVisualElements(mustParse(t, markup), DefaultConfig())

	want := []report.VisualElementRef{
		{ID: "sales", Width: report.IntPtr(400), Height: report.IntPtr(150)},
		{ID: "canvas:nth-child(1)", Width: report.IntPtr(300), Height: report.IntPtr(80)},
	}
	if !reflect.DeepEqual(visuals.Charts, want) {
		t.Errorf("Charts = %s, want %s", jsonOf(visuals.Charts), jsonOf(want))
	}
}

func TestVisual_SVG(t *testing.T) {
	markup := `
		<div><svg id="bars">` + strings.Repeat(`<rect></rect>`, 6) + `</svg></div>
		<div class="graph-wrap"><svg><path></path><path></path></svg></div>
		<div><svg class="icon"><circle></circle><circle></circle></svg></div>`

	visuals := detectVisualElements(mustParse(t, markup), DefaultConfig())

	if len(visuals.DataVisualizations) != 2 {
		t.Fatalf("DataVisualizations = %s", jsonOf(visuals.DataVisualizations))
	}
	bars := visuals.DataVisualizations[0]
	if bars.ID != "bars" || bars.Type != "svg" || *bars.Children != 6 {
		t.Errorf("bars = %s", jsonOf(bars))
	}
	wrapped := visuals.DataVisualizations[1]
	if wrapped.ID != "svg:nth-child(1)" || *wrapped.Children != 2 {
		t.Errorf("wrapped = %s", jsonOf(wrapped))
	}
}

func TestVisual_PlainElementsIgnored(t *testing.T) {
	doc := mustParse(t, `<canvas></canvas><svg></svg>`)
	visuals := detectVisualElements(doc, DefaultConfig())
	if len(visuals.Charts) != 0 || len(visuals.DataVisualizations) != 0 {
		t.Errorf("visuals = %s", jsonOf(visuals))
	}
}

// =============================================================================
// Network Observation Tests
// =============================================================================

func TestDetectedAPIs(t *testing.T) {
	resources := []dom.Resource{
		{Name: "https://example.com/api/users", InitiatorType: "fetch"},
		{Name: "https://example.com/app.css", InitiatorType: "link"},
		{Name: "https://example.com/data.json", InitiatorType: "script"},
		{Name: "https://example.com/logo.png", InitiatorType: "img"},
		{Name: "https://example.com/track", InitiatorType: "xmlhttprequest"},
		{Name: "https://example.com/poll", InitiatorType: "fetch"},
		{Name: "https://example.com/api/v2/items", InitiatorType: "other"},
		{Name: "https://example.com/api/overflow", InitiatorType: "fetch"},
	}

	got := detectedAPIs(resources, 5)
	want := []report.NetworkObservation{
		{URL: "https://example.com/api/users", Type: "fetch"},
		{URL: "https://example.com/data.json", Type: "script"},
		{URL: "https://example.com/track", Type: "xmlhttprequest"},
		{URL: "https://example.com/poll", Type: "fetch"},
		{URL: "https://example.com/api/v2/items", Type: "other"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("detectedAPIs() = %+v, want %+v", got, want)
	}
}

func TestDetectedAPIs_NoneIsNil(t *testing.T) {
	if got := detectedAPIs([]dom.Resource{{Name: "https://x/a.png", InitiatorType: "img"}}, 5); got != nil {
		t.Errorf("detectedAPIs() = %+v, want nil", got)
	}

	doc := mustParse(t, `<p></p>`, dom.WithResources([]dom.Resource{{Name: "https://x/api/a", InitiatorType: "fetch"}}))
	r := mustAnalyze(t, doc)
	if len(r.Details.DetectedAPIs) != 1 {
		t.Errorf("DetectedAPIs = %+v", r.Details.DetectedAPIs)
	}
}

func jsonOf(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
