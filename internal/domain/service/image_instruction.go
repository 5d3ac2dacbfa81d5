package service

import "github.com/niceassistant/assistant/internal/domain/valueobject"

const (
	openAIImageInstruction = "You can show the user an image. When they ask for one, or a picture would clearly help, " +
		"end your reply with <generate_image>DESCRIPTION</generate_image>. The description is sent to OpenAI image generation, " +
		"so write it as one natural-language paragraph covering subject, setting, composition, lighting and style. " +
		"Maintain visual continuity with earlier images of you and the user by repeating established appearance details. " +
		"Keep it suitable for general audiences. Never mention the tag in the visible text."

	localImageInstruction = "You can show the user an image. When they ask for one, or a picture would clearly help, " +
		"end your reply with <generate_image>DESCRIPTION</generate_image>. The description is sent to a Stable Diffusion " +
		"engine (Automatic1111), so write it as comma-separated visual tags: subject, clothing, setting, camera framing, " +
		"lighting, art style. Maintain visual continuity with earlier images by repeating established appearance details. " +
		"Never mention the tag in the visible text."
)

// ModelImageInstruction tells the chat model how to request an image for the
// active provider. Disabled providers get no instruction.
func ModelImageInstruction(provider valueobject.ImageProvider) string {
	switch provider.(type) {
	case valueobject.OpenAIImage:
		return openAIImageInstruction
	case valueobject.LocalImage:
		return localImageInstruction
	default:
		return ""
	}
}
