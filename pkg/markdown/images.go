package markdown

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Image is one non-inline image reference found in a message.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Images extracts image references from an HTML fragment in document
// order. Inline data: URIs are skipped; they are not addressable
// resources.
func Images(fragment string) []Image {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var images []Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, Image{Src: src, Alt: alt})
	})
	return images
}

// AppendImages appends markdown image lines to text, the way the chat
// result is presented when a reply carries generated images.
func AppendImages(text string, images []Image) string {
	if len(images) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	for _, img := range images {
		alt := img.Alt
		if alt == "" {
			alt = "image"
		}
		b.WriteString("![" + alt + "](" + img.Src + ")\n")
	}
	return b.String()
}
