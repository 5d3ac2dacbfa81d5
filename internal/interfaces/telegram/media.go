package telegram

import (
	"context"
	"fmt"
	"path"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-resty/resty/v2"

	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

const (
	downloadTimeout = 60 * time.Second
	maxDownloadSize = 20 << 20 // Bot API getFile 上限
)

// voiceNote 一条语音或音频附件
type voiceNote struct {
	FileID   string
	MimeType string
	Filename string
	Size     int
}

// extractVoice returns the voice note or audio file attached to msg, if any.
func extractVoice(msg *tgbotapi.Message) *voiceNote {
	switch {
	case msg == nil:
		return nil
	case msg.Voice != nil:
		mime := msg.Voice.MimeType
		if mime == "" {
			mime = "audio/ogg"
		}
		return &voiceNote{FileID: msg.Voice.FileID, MimeType: mime, Filename: "voice.ogg", Size: msg.Voice.FileSize}
	case msg.Audio != nil:
		mime := msg.Audio.MimeType
		if mime == "" {
			mime = "audio/mpeg"
		}
		name := msg.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		return &voiceNote{FileID: msg.Audio.FileID, MimeType: mime, Filename: name, Size: msg.Audio.FileSize}
	}
	return nil
}

// downloader fetches Telegram files through their direct URL.
type downloader struct {
	bot    Bot
	client *resty.Client
}

func newDownloader(bot Bot) *downloader {
	return &downloader{
		bot:    bot,
		client: resty.New().SetTimeout(downloadTimeout),
	}
}

func (d *downloader) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := d.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, domainErrors.NewServiceUnavailableError("could not fetch the voice message", err)
	}

	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, domainErrors.NewServiceUnavailableError("could not fetch the voice message", err)
	}
	if resp.IsError() {
		return nil, domainErrors.NewServiceUnavailableError("could not fetch the voice message",
			fmt.Errorf("download %s: HTTP %d", path.Base(fileID), resp.StatusCode()))
	}
	body := resp.Body()
	if len(body) > maxDownloadSize {
		return nil, domainErrors.NewInvalidInputError("voice message is too large")
	}
	return body, nil
}
