package morning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoForecast is returned when the page has no forecast summary.
var ErrNoForecast = errors.New("forecast summary not found")

// Forecaster returns a one-line forecast for today.
type Forecaster interface {
	Forecast(ctx context.Context) (string, error)
}

// Wunderground scrapes the forecast summary from a Weather Underground page.
type Wunderground struct {
	URL  string
	HTTP *http.Client
}

// Forecast implements Forecaster.
func (w *Wunderground) Forecast(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := httpClient(w.HTTP).Do(req)
	if err != nil {
		return "", fmt.Errorf("get weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get weather: status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse weather page: %w", err)
	}

	return forecastSummary(doc)
}

// forecastSummary returns the text of the first `div.columns.small-12 > a.module-link`.
func forecastSummary(doc *html.Node) (string, error) {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.A && hasClasses(n, "module-link") &&
			n.Parent != nil && n.Parent.DataAtom == atom.Div && hasClasses(n.Parent, "columns", "small-12") {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == nil {
		return "", ErrNoForecast
	}

	text := strippedText(found)
	if text == "" {
		return "", ErrNoForecast
	}
	return text, nil
}

func hasClasses(n *html.Node, want ...string) bool {
	var have []string
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			have = strings.Fields(a.Val)
			break
		}
	}
	for _, w := range want {
		ok := false
		for _, h := range have {
			if h == w {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// strippedText joins every descendant text node after trimming each one.
func strippedText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
