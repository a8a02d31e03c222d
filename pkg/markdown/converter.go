package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	preRe       = regexp.MustCompile("(?s)<pre><code(?: class=\"[^\"]*\")?>(.*?)</code></pre>")
	codeRe      = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	headingRe   = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	linkRe      = regexp.MustCompile(`(?s)<a href="([^"]*)"[^>]*>(.*?)</a>`)
	tagRe       = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRe     = regexp.MustCompile(`\n{3,}`)
)

// ToWhatsApp converts markdown to WhatsApp message markup (*bold*, _italic_, ~strike~, ```mono```)
func ToWhatsApp(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return markdown
	}

	out := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))
	return cleanHTMLForWhatsApp(out)
}

func cleanHTMLForWhatsApp(out string) string {
	out = preRe.ReplaceAllString(out, "```$1```\n")
	out = codeRe.ReplaceAllString(out, "```$1```")
	out = headingRe.ReplaceAllString(out, "*$1*\n")
	out = paragraphRe.ReplaceAllString(out, "$1\n")

	replacer := strings.NewReplacer(
		"<strong>", "*", "</strong>", "*",
		"<em>", "_", "</em>", "_",
		"<del>", "~", "</del>", "~",
		"<ul>", "", "</ul>", "",
		"<ol>", "", "</ol>", "",
		"<li>", "• ", "</li>", "",
		"<br>", "\n", "<br />", "\n",
		"<hr>", "", "<hr />", "",
	)
	out = replacer.Replace(out)

	out = linkRe.ReplaceAllStringFunc(out, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		if parts[1] == parts[2] {
			return parts[1]
		}
		return parts[2] + " (" + parts[1] + ")"
	})

	// Remove anything WhatsApp cannot render
	out = tagRe.ReplaceAllString(out, "")
	out = html.UnescapeString(out)

	out = blankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
