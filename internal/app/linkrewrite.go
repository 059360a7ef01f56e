package app

import (
	"net/url"
	"regexp"
	"strings"
)

var anchorTag = regexp.MustCompile(`(?i)<a\s[^>]*>`)
var anchorHref = regexp.MustCompile(`(?i)\shref\s*=\s*(?:"([^"]*)"|'([^']*)')`)
var anchorTarget = regexp.MustCompile(`(?i)\starget\s*=`)
var imgTag = regexp.MustCompile(`(?i)<img\s[^>]*>`)
var imgLoading = regexp.MustCompile(`(?i)\sloading\s*=`)

// decorateExternalLinks opens links to other hosts in a new tab and defers
// off-screen images. Links back to siteHost are left untouched.
func decorateExternalLinks(content, siteHost string) string {
	if content == "" {
		return content
	}

	content = anchorTag.ReplaceAllStringFunc(content, func(tag string) string {
		sub := anchorHref.FindStringSubmatch(tag)
		if sub == nil || anchorTarget.MatchString(tag) {
			return tag
		}
		href := sub[1]
		if href == "" {
			href = sub[2]
		}
		if !isExternal(href, siteHost) {
			return tag
		}
		return injectAttrs(tag, ` target="_blank" rel="noopener noreferrer"`)
	})

	return imgTag.ReplaceAllStringFunc(content, func(tag string) string {
		if imgLoading.MatchString(tag) {
			return tag
		}
		return injectAttrs(tag, ` loading="lazy"`)
	})
}

func isExternal(href, siteHost string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return !strings.EqualFold(u.Host, siteHost)
}

// injectAttrs adds attrs before the closing bracket, keeping a self-closing
// slash in place.
func injectAttrs(tag, attrs string) string {
	end := len(tag) - 1
	if strings.HasSuffix(tag, "/>") {
		end--
	}
	return tag[:end] + attrs + tag[end:]
}
