package vault

import (
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Warning categories.
const (
	WarnNoDate       = "No date"
	WarnTodos        = "Has TODOs"
	WarnLocalImages  = "Local images"
	WarnBrokenLink   = "Broken link"
	WarnLocalMedia   = "Local media"
	WarnLocalVideo   = "Local video"
	WarnLongLinkText = "Long link text"
)

const (
	defaultLinkWords = 4
	defaultCDNMarker = "cloudinary"
)

// Rules tune warning computation.
type Rules struct {
	// CDNHost marks media as hosted externally when it appears in the body.
	CDNHost string
	// LongLinkWords is the largest number of words allowed in link text.
	LongLinkWords int
}

func (r Rules) cdn() string {
	if r.CDNHost == "" {
		return defaultCDNMarker
	}
	return r.CDNHost
}

func (r Rules) linkWords() int {
	if r.LongLinkWords <= 0 {
		return defaultLinkWords
	}
	return r.LongLinkWords
}

var brokenLinkPatterns = []string{"]()", "](#)", "](http)", "[[]]", "![]("}

// Patterns that point at media likely stored next to the document.
var localMediaPatterns = []string{
	"![]()", `src=""`, "src=''",
	".png)", ".jpg)", ".jpeg)", ".gif)",
	"](attachments/", "](Attachments/", "](assets/", "](images/",
}

// Empty embeds are broken whether or not the CDN is referenced elsewhere.
var alwaysLocal = map[string]bool{"![]()": true, `src=""`: true}

// Warnings computes the ordered warning list for a document body.
func Warnings(body string, fields map[string]string, rules Rules) []string {
	warnings := []string{}
	has := func(w string) bool {
		for _, x := range warnings {
			if x == w {
				return true
			}
		}
		return false
	}

	if _, ok := fields["date"]; !ok {
		warnings = append(warnings, WarnNoDate)
	}
	if strings.Contains(body, "TODO") || strings.Contains(body, "FIXME") {
		warnings = append(warnings, WarnTodos)
	}
	if strings.Contains(body, "](./") || strings.Contains(body, "](/attachments") {
		warnings = append(warnings, WarnLocalImages)
	}
	for _, p := range brokenLinkPatterns {
		if strings.Contains(body, p) {
			warnings = append(warnings, WarnBrokenLink)
			break
		}
	}

	onCDN := strings.Contains(body, rules.cdn())
	localMedia := false
	for _, p := range localMediaPatterns {
		if strings.Contains(body, p) && (!onCDN || alwaysLocal[p]) {
			localMedia = true
			break
		}
	}
	if localMedia && !has(WarnLocalImages) {
		warnings = append(warnings, WarnLocalMedia)
	}
	// Hostless HTML images count as local media even next to relative Markdown images.
	if strings.Contains(body, "<img") && !onCDN && !strings.Contains(body, "https://") && !has(WarnLocalMedia) {
		warnings = append(warnings, WarnLocalMedia)
	}

	if strings.Contains(body, "<video") || strings.Contains(body, ".mp4)") || strings.Contains(body, ".webm)") {
		if !onCDN && !strings.Contains(body, "https://") {
			warnings = append(warnings, WarnLocalVideo)
		}
	}

	if hasLongLinkText([]byte(body), rules.linkWords()) {
		warnings = append(warnings, WarnLongLinkText)
	}
	return warnings
}

// hasLongLinkText reports whether any non-image link has more than maxWords
// words of visible text.
func hasLongLinkText(body []byte, maxWords int) bool {
	root := goldmark.New().Parser().Parse(text.NewReader(body))
	found := false
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch n.(type) {
		case *gmast.Image:
			return gmast.WalkSkipChildren, nil
		case *gmast.Link:
			if len(strings.Fields(linkText(n, body))) > maxWords {
				found = true
				return gmast.WalkStop, nil
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return found
}

func linkText(link gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(link, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return b.String()
}
