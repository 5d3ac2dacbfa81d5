package service

import (
	"strings"
	"unicode"
)

// Intent is the classified purpose of a user turn.
type Intent int

const (
	IntentChat Intent = iota
	IntentImage
	IntentVideo
)

func (i Intent) String() string {
	switch i {
	case IntentImage:
		return "image"
	case IntentVideo:
		return "video"
	default:
		return "chat"
	}
}

var (
	imageVerbs = wordSet("generate", "create", "make", "draw", "render")
	imageNouns = wordSet("image", "picture", "photo", "illustration", "art")
	videoVerbs = wordSet("generate", "create", "make", "render", "produce")
	videoNouns = wordSet("video", "clip", "animation", "movie", "footage")
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ClassifyIntent applies the fixed precedence video > image > chat.
func ClassifyIntent(text string) Intent {
	words := tokenize(text)
	if matchesRequest(words, videoVerbs, videoNouns) {
		return IntentVideo
	}
	if matchesRequest(words, imageVerbs, imageNouns) {
		return IntentImage
	}
	return IntentChat
}

// LooksLikeVideoRequest reports a generate-verb plus video-noun pairing.
func LooksLikeVideoRequest(text string) bool {
	return matchesRequest(tokenize(text), videoVerbs, videoNouns)
}

// LooksLikeImageRequest reports a generate-verb plus image-noun pairing.
func LooksLikeImageRequest(text string) bool {
	return matchesRequest(tokenize(text), imageVerbs, imageNouns)
}

func matchesRequest(words []string, verbs, nouns map[string]struct{}) bool {
	var verb, noun bool
	for _, w := range words {
		if _, ok := verbs[w]; ok {
			verb = true
		}
		if _, ok := nouns[w]; ok {
			noun = true
		} else if _, ok := nouns[strings.TrimSuffix(w, "s")]; ok {
			noun = true
		}
	}
	return verb && noun
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// which also collapses whitespace.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
