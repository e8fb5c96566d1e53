package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	"RateLane/pkg/scraper"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxPageBytes caps how much of an upstream body is read.
const maxPageBytes = 4 << 20

var (
	bcvUSDPattern = regexp.MustCompile(`(?is)(?:USD\s*</span>|dolar|d&oacute;lar|dólar).*?<strong>\s*([\d.,]+)`)
	bcvEURPattern = regexp.MustCompile(`(?is)(?:EUR\s*</span>|euro).*?<strong>\s*([\d.,]+)`)
)

// bcvParsed is the structural form of the BCV home page.
// Zero values mean the rate was not found.
type bcvParsed struct {
	USD           float64
	EUR           float64
	EffectiveDate string
}

// bcvSource scrapes the official rates from the Banco Central de Venezuela
// home page.
type bcvSource struct {
	client *http.Client
	cfg    *conf.BCV
}

func newBCVSource(client *http.Client, cfg *conf.BCV) *bcvSource {
	return &bcvSource{client: client, cfg: cfg}
}

func (s *bcvSource) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return "", scraper.Wrap(scraper.KindConfig, err, "invalid BCV request")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-VE,es;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", scraper.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return "", scraper.FromHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", scraper.Classify(err)
	}
	return string(body), nil
}

// Parse tries, in order: the #dolar/#euro containers, USD/EUR labelled
// spans, and a regex over the raw markup.
func (s *bcvSource) Parse(raw string) (bcvParsed, error) {
	if strings.TrimSpace(raw) == "" {
		return bcvParsed{}, scraper.NewError(scraper.KindEmptyData, "empty BCV page")
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return bcvParsed{}, scraper.Wrap(scraper.KindParse, err, "malformed BCV page")
	}

	var out bcvParsed
	out.USD = rateByContainerID(doc, "dolar")
	out.EUR = rateByContainerID(doc, "euro")

	if out.USD == 0 {
		out.USD = rateBySpanLabel(doc, "USD")
	}
	if out.EUR == 0 {
		out.EUR = rateBySpanLabel(doc, "EUR")
	}

	if out.USD == 0 {
		out.USD = rateByPattern(raw, bcvUSDPattern)
	}
	if out.EUR == 0 {
		out.EUR = rateByPattern(raw, bcvEURPattern)
	}

	out.EffectiveDate = effectiveDate(doc)
	return out, nil
}

func (s *bcvSource) Validate(p bcvParsed) *scraper.Error {
	var missing []string
	if p.USD == 0 {
		missing = append(missing, "USD")
	}
	if p.EUR == 0 {
		missing = append(missing, "EUR")
	}
	if len(missing) > 0 {
		return scraper.NewError(scraper.KindEmptyData, "BCV rates not found: "+strings.Join(missing, ", "))
	}
	if !s.cfg.USD.Contains(p.USD) {
		return scraper.NewError(scraper.KindValidation,
			fmt.Sprintf("USD rate %.4f outside [%.2f, %.2f]", p.USD, s.cfg.USD.Min, s.cfg.USD.Max))
	}
	if !s.cfg.EUR.Contains(p.EUR) {
		return scraper.NewError(scraper.KindValidation,
			fmt.Sprintf("EUR rate %.4f outside [%.2f, %.2f]", p.EUR, s.cfg.EUR.Min, s.cfg.EUR.Max))
	}
	return nil
}

func (s *bcvSource) Transform(p bcvParsed) model.BCVRates {
	return model.BCVRates{
		USD:           model.Round2(p.USD),
		EUR:           model.Round2(p.EUR),
		EffectiveDate: p.EffectiveDate,
	}
}

func rateByContainerID(doc *html.Node, id string) float64 {
	container := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
	if container == nil {
		return 0
	}
	strong := findNode(container, isStrong)
	if strong == nil {
		return 0
	}
	return parseRate(textOf(strong))
}

// rateBySpanLabel finds a <span> whose text is label and returns the first
// <strong> within its three nearest ancestors.
func rateBySpanLabel(doc *html.Node, label string) float64 {
	span := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Span &&
			strings.EqualFold(strings.TrimSpace(textOf(n)), label)
	})
	if span == nil {
		return 0
	}
	for p, depth := span.Parent, 0; p != nil && depth < 3; p, depth = p.Parent, depth+1 {
		if strong := findNode(p, isStrong); strong != nil {
			if v := parseRate(textOf(strong)); v > 0 {
				return v
			}
		}
	}
	return 0
}

func rateByPattern(raw string, re *regexp.Regexp) float64 {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0
	}
	return parseRate(m[1])
}

// effectiveDate reads the "Fecha Valor" date. The BCV page carries an ISO
// timestamp in the content attribute of the date span.
func effectiveDate(doc *html.Node) string {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && strings.Contains(attr(n, "class"), "date-display-single")
	})
	if n == nil {
		return ""
	}
	if content := attr(n, "content"); len(content) >= 10 {
		return content[:10]
	}
	return strings.Join(strings.Fields(textOf(n)), " ")
}

// parseRate accepts "36,3995", "1.234,56" and "36.40". It returns 0 when the
// text is not a positive number.
func parseRate(text string) float64 {
	s := strings.Join(strings.Fields(text), "")
	if s == "" {
		return 0
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func isStrong(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Strong
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
