package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecorateExternalLinks(t *testing.T) {
	content := `<p><a href="https://www.gwangju.go.kr/news">시청</a> and ` +
		`<a href='https://kjtimes.co.kr/article/1'>own</a> and ` +
		`<a href="/share/abc">relative</a> and ` +
		`<a href="https://example.com" target="_self">kept</a></p>`

	result := decorateExternalLinks(content, "kjtimes.co.kr")

	assert.Contains(t, result, `<a href="https://www.gwangju.go.kr/news" target="_blank" rel="noopener noreferrer">`)
	assert.Contains(t, result, `<a href='https://kjtimes.co.kr/article/1'>`)
	assert.Contains(t, result, `<a href="/share/abc">`)
	assert.Contains(t, result, `<a href="https://example.com" target="_self">`)
}

func TestDecorateExternalLinksLazyImages(t *testing.T) {
	content := `<img src="/a.jpg"><img src="/b.jpg" /><img src="/c.jpg" loading="eager">`

	result := decorateExternalLinks(content, "kjtimes.co.kr")

	assert.Equal(t,
		`<img src="/a.jpg" loading="lazy"><img src="/b.jpg"  loading="lazy"/><img src="/c.jpg" loading="eager">`,
		result)
}

func TestDecorateExternalLinksIgnoresMailto(t *testing.T) {
	content := `<a href="mailto:jebo@kjtimes.co.kr">제보</a>`
	assert.Equal(t, content, decorateExternalLinks(content, "kjtimes.co.kr"))
}
