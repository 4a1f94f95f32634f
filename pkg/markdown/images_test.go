package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImages(t *testing.T) {
	fragment := `
		<p>text</p>
		<img src="https://cdn.example/a.png" alt="first">
		<img src="data:image/png;base64,AAAA">
		<img src="https://cdn.example/b.png">
	`
	got := Images(fragment)
	assert.Equal(t, []Image{
		{Src: "https://cdn.example/a.png", Alt: "first"},
		{Src: "https://cdn.example/b.png", Alt: ""},
	}, got)
}

func TestImagesEmpty(t *testing.T) {
	assert.Empty(t, Images(`<p>no pictures here</p>`))
}

func TestAppendImages(t *testing.T) {
	images := []Image{
		{Src: "https://cdn.example/a.png", Alt: "diagram"},
		{Src: "https://cdn.example/b.png"},
	}
	got := AppendImages("the answer", images)
	assert.Equal(t, "the answer\n\n![diagram](https://cdn.example/a.png)\n![image](https://cdn.example/b.png)\n", got)

	assert.Equal(t, "unchanged", AppendImages("unchanged", nil))
}
