package service

import (
	"regexp"
	"strings"

	"github.com/niceassistant/assistant/internal/domain/valueobject"
)

type termRewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

func wholeWord(term, replacement string) termRewrite {
	return termRewrite{
		pattern:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
		replacement: replacement,
	}
}

// Multi-word terms come first so "explicit sex" wins over "sexual" style overlaps.
var sensitiveTerms = []termRewrite{
	wholeWord("graphic violence", "intense action"),
	wholeWord("explicit sex", "romantic scene"),
	wholeWord("nsfw", "safe-for-work"),
	wholeWord("nude", "fully clothed"),
	wholeWord("naked", "fully clothed"),
	wholeWord("sexual", "romantic"),
	wholeWord("porn", "editorial"),
	wholeWord("fetish", "fashion concept"),
	wholeWord("gore", "dramatic"),
}

const (
	openAIPromptPrefix = "Generate a polished, high-quality image of "
	openAIPromptSuffix = " Compose the scene with a clear focal subject, balanced framing and natural, flattering lighting." +
		" Keep every person fully clothed and the content suitable for general audiences, in line with content policy."
	openAIFallbackPrompt = openAIPromptPrefix + "a friendly, colorful everyday scene." + openAIPromptSuffix

	localQualityPrefix = "masterpiece, best quality, highly detailed"
	localNegativeBase  = "lowres, bad anatomy, bad hands, extra fingers, extra limbs, deformed, blurry, jpeg artifacts, watermark, signature, text"
	localNegativeSafe  = ", nsfw, nudity, explicit, sexual, gore, blood, violence"
)

// SanitizeTerms replaces the sensitive vocabulary with safe equivalents.
func SanitizeTerms(prompt string) string {
	for _, t := range sensitiveTerms {
		prompt = t.pattern.ReplaceAllString(prompt, t.replacement)
	}
	return prompt
}

// RewriteForOpenAIImage sanitizes and wraps a prompt in the natural-language
// template the OpenAI image models respond to best. Already-wrapped prompts are
// only re-sanitized, so the rewrite can be applied more than once.
func RewriteForOpenAIImage(prompt string) string {
	prompt = collapseWhitespace(prompt)
	if prompt == "" {
		return openAIFallbackPrompt
	}
	if strings.HasPrefix(prompt, openAIPromptPrefix) {
		return SanitizeTerms(prompt)
	}
	body := strings.TrimRight(SanitizeTerms(prompt), ".")
	return openAIPromptPrefix + body + "." + openAIPromptSuffix
}

// RewriteForLocalDiffusion prepares a tag-style prompt for a Stable Diffusion
// engine. Sensitive terms are only rewritten when NSFW output is disallowed.
func RewriteForLocalDiffusion(prompt string, allowNSFW bool) string {
	prompt = collapseWhitespace(prompt)
	if !allowNSFW {
		prompt = SanitizeTerms(prompt)
	}
	if strings.HasPrefix(prompt, localQualityPrefix) {
		return prompt
	}
	if prompt == "" {
		return localQualityPrefix
	}
	return localQualityPrefix + ", " + prompt
}

// LocalNegativePrompt is the companion negative prompt for local diffusion.
func LocalNegativePrompt(allowNSFW bool) string {
	if allowNSFW {
		return localNegativeBase
	}
	return localNegativeBase + localNegativeSafe
}

const detailedPromptMinWords = 12

var (
	promptWord         = regexp.MustCompile(`[\p{L}\p{N}']+`)
	compositionPattern = regexp.MustCompile(`(?i)\b(shot|close-?up|wide|portrait|landscape|composition|framing|angle|full[- ]body|overhead|aerial|perspective|centered)\b`)
	lightingPattern    = regexp.MustCompile(`(?i)\b(light|lighting|lit|sunlight|sunset|golden hour|rim|backlit|backlight|shadows?|neon|glow|studio|ambient)\b`)
	stylePattern       = regexp.MustCompile(`(?i)\b(style|illustration|photograph|photo|photorealistic|painting|digital|watercolor|oil|cinematic|render|anime|sketch|3d|editorial)\b`)
)

// PromptIsDetailed reports whether a prompt already reads like a finished
// image brief: enough words plus at least one composition, lighting or style cue.
func PromptIsDetailed(prompt string) bool {
	if len(promptWord.FindAllString(prompt, -1)) < detailedPromptMinWords {
		return false
	}
	return compositionPattern.MatchString(prompt) ||
		lightingPattern.MatchString(prompt) ||
		stylePattern.MatchString(prompt)
}

// PrepareImagePrompt applies the provider-specific rewrite.
func PrepareImagePrompt(provider valueobject.ImageProvider, prompt string) string {
	switch p := provider.(type) {
	case valueobject.OpenAIImage:
		return RewriteForOpenAIImage(prompt)
	case valueobject.LocalImage:
		return RewriteForLocalDiffusion(prompt, p.AllowNSFW)
	default:
		return collapseWhitespace(prompt)
	}
}

// RefineDirectivePrompt rewrites a model-extracted prompt only when it is not
// already detailed. Refining a refined prompt returns it unchanged.
func RefineDirectivePrompt(provider valueobject.ImageProvider, prompt string) string {
	if PromptIsDetailed(prompt) {
		return prompt
	}
	return PrepareImagePrompt(provider, prompt)
}

// AppendImageContext adds a context block (visual identity notes) after an
// already prepared prompt. The block gets the same term filtering as the
// prompt but never the provider template.
func AppendImageContext(provider valueobject.ImageProvider, prompt, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return prompt
	}
	switch p := provider.(type) {
	case valueobject.OpenAIImage:
		notes = SanitizeTerms(notes)
	case valueobject.LocalImage:
		if !p.AllowNSFW {
			notes = SanitizeTerms(notes)
		}
	}
	return prompt + "\n\n" + notes
}
