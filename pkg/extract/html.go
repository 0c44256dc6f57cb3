package extract

import (
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors are tried in order before falling back to <body>.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
}

func fromHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening html file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("error parsing html: %w", err)
	}

	doc.Find("script, style, nav, footer").Remove()

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return normalize(content), nil
}
