package service

import (
	"regexp"
	"strings"
)

// ImageDirective is what a parser found in a model reply. Prompt is empty when
// the reply carried no directive.
type ImageDirective struct {
	CleanReply string
	Prompt     string
}

// ReplyDirectiveParser extracts generation directives from free-text model
// replies. Callers depend on this interface so a structured-output contract
// can replace the tag format later.
type ReplyDirectiveParser interface {
	ParseImageDirective(reply string) ImageDirective
}

// TagDirectiveParser reads <generate_image>...</generate_image> tags.
//
// Only the first tag's content becomes the prompt, but every tag is stripped
// from the visible reply, so content of any later tags is dropped.
type TagDirectiveParser struct{}

var generateImageTag = regexp.MustCompile(`(?is)<generate_image>(.*?)</generate_image>`)

var _ ReplyDirectiveParser = TagDirectiveParser{}

// ParseImageDirective implements ReplyDirectiveParser.
func (TagDirectiveParser) ParseImageDirective(reply string) ImageDirective {
	m := generateImageTag.FindStringSubmatch(reply)
	if m == nil {
		return ImageDirective{CleanReply: reply}
	}
	return ImageDirective{
		CleanReply: strings.TrimSpace(generateImageTag.ReplaceAllString(reply, "")),
		Prompt:     collapseWhitespace(m[1]),
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
