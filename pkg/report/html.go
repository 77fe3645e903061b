package report

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>bcp report</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; }
tbody tr:first-child { background: #e8f5e9; }
code { background: #f2f2f2; padding: 0 0.2rem; }
</style>
</head>
<body>
`

const pageTail = `</body>
</html>
`

// HTML renders the markdown report to a standalone page.
func HTML(r Report) ([]byte, error) {
	return Page(Markdown(r))
}

// Page converts markdown to a standalone HTML page.
func Page(markdown string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var page bytes.Buffer
	page.Grow(len(pageHead) + body.Len() + len(pageTail))
	page.WriteString(pageHead)
	page.Write(body.Bytes())
	page.WriteString(pageTail)
	return page.Bytes(), nil
}
