package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagDirectiveParser(t *testing.T) {
	p := TagDirectiveParser{}

	tests := []struct {
		name       string
		reply      string
		wantReply  string
		wantPrompt string
	}{
		{
			name:       "single tag",
			reply:      "ok. <generate_image>a red fox in snow</generate_image>",
			wantReply:  "ok.",
			wantPrompt: "a red fox in snow",
		},
		{
			name:      "no tag",
			reply:     "  just text  ",
			wantReply: "  just text  ",
		},
		{
			name:       "case insensitive multiline",
			reply:      "Here.\n<GENERATE_IMAGE>\n a fox\n  at dusk \n</Generate_Image>\nEnjoy",
			wantReply:  "Here.\n\nEnjoy",
			wantPrompt: "a fox at dusk",
		},
		{
			name:       "keeps first strips all",
			reply:      "<generate_image>one</generate_image> mid <generate_image>two</generate_image>",
			wantReply:  "mid",
			wantPrompt: "one",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.ParseImageDirective(tt.reply)
			assert.Equal(t, tt.wantReply, d.CleanReply)
			assert.Equal(t, tt.wantPrompt, d.Prompt)
		})
	}
}
