package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"generate a video of a cat", IntentVideo},
		{"generate a picture of a cat", IntentImage},
		{"explain how cats behave", IntentChat},
		{"make a video from this picture", IntentVideo},
		{"Please   DRAW me some Pictures!", IntentImage},
		{"produce a short clip", IntentVideo},
		{"produce a picture", IntentChat},
		{"I watched a movie yesterday", IntentChat},
		{"", IntentChat},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.text))
		})
	}
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "chat", IntentChat.String())
	assert.Equal(t, "image", IntentImage.String())
	assert.Equal(t, "video", IntentVideo.String())
}

func TestLooksLikeRequests(t *testing.T) {
	assert.True(t, LooksLikeImageRequest("create art for my wall"))
	assert.False(t, LooksLikeImageRequest("art is nice"))
	assert.True(t, LooksLikeVideoRequest("render an animation"))
	assert.False(t, LooksLikeVideoRequest("draw a video"))
}
