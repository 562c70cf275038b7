// Package web provides the embedded HTML pages served by the gate. Pages
// are rendered by static string substitution; there is no template engine.
package web

import (
	"embed"
	"html"
	"strings"
)

//go:embed challenge.html denied.html
var assets embed.FS

// Placeholders substituted into the challenge page.
const (
	keyPlaceholder      = "PUBLISHABLE_KEY"
	redirectPlaceholder = "REPLACE_REDIRECT"
)

// Pages renders the gate's HTML responses.
type Pages struct {
	challenge      string
	denied         string
	publishableKey string
}

// New loads the embedded pages. The publishable key identifies this site
// to the challenge provider and is embedded into the challenge page.
func New(publishableKey string) *Pages {
	challenge, _ := assets.ReadFile("challenge.html")
	denied, _ := assets.ReadFile("denied.html")
	return &Pages{
		challenge:      string(challenge),
		denied:         string(denied),
		publishableKey: publishableKey,
	}
}

// Challenge renders the challenge page. The return URL is escaped before
// substitution so a crafted request URL cannot inject markup.
func (p *Pages) Challenge(returnURL string) string {
	out := strings.ReplaceAll(p.challenge, keyPlaceholder, html.EscapeString(p.publishableKey))
	return strings.ReplaceAll(out, redirectPlaceholder, html.EscapeString(returnURL))
}

// Denied renders the denial page.
func (p *Pages) Denied() string {
	return p.denied
}
