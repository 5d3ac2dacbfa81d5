package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

type instantClock struct{}

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newDispatcher(openAIURL, kokoroURL string) *Dispatcher {
	logger := zap.NewNop()
	providers := config.ProvidersConfig{
		OpenAI: config.OpenAIConfig{BaseURL: openAIURL},
		Kokoro: config.KokoroConfig{BaseURL: kokoroURL, Timeout: 5 * time.Second},
	}
	return NewDispatcher(
		NewOpenAIClient(providers.OpenAI, logger),
		NewLocalClient(providers, logger),
		config.VideoConfig{PollInterval: time.Millisecond, MaxAttempts: 3},
		logger,
	).WithClock(instantClock{})
}

func TestOpenAISpeech_ClampsSpeedAndSendsKey(t *testing.T) {
	var got speechPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	media, err := newDispatcher(srv.URL, "").Synthesize(context.Background(),
		valueobject.OpenAISpeech{APIKey: "sk-test", Voice: "alloy", Model: "tts-1", Format: "mp3", Speed: 1},
		service.SpeechRequest{Text: "hello", Voice: "nova", Speed: 10})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), media.Data)
	assert.Equal(t, ".mp3", media.Ext)
	assert.Equal(t, "nova", got.Voice)
	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, 4.0, got.Speed)
}

func TestOpenAISpeech_MissingKeyIsConfigurationError(t *testing.T) {
	_, err := newDispatcher("http://127.0.0.1:1", "").Synthesize(context.Background(),
		valueobject.OpenAISpeech{}, service.SpeechRequest{Text: "hello"})
	assert.True(t, domainErrors.IsConfiguration(err))
}

func TestOpenAITranscribe_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.webm", hdr.Filename)
		assert.Equal(t, "RIFF", string(data))
		_, _ = w.Write([]byte(`{"text":"  guten tag  "}`))
	}))
	defer srv.Close()

	text, err := newDispatcher(srv.URL, "").Transcribe(context.Background(),
		valueobject.OpenAITranscription{APIKey: "sk", Model: "whisper-1", Language: "de"},
		service.TranscriptionRequest{Audio: []byte("RIFF"), Filename: "clip.webm", ContentType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, "guten tag", text)
}

func TestTranscribe_LocalIsNotImplemented(t *testing.T) {
	_, err := newDispatcher("", "").Transcribe(context.Background(),
		valueobject.LocalTranscription{}, service.TranscriptionRequest{Audio: []byte("x")})
	assert.True(t, domainErrors.IsConfiguration(err))
}

func TestOpenAIImage_Base64AndPromptAsGiven(t *testing.T) {
	detailed := "a lighthouse at dusk, oil painting, warm light, wide shot, calm sea, detailed clouds"
	png := []byte{0x89, 'P', 'N', 'G'}
	var got imagePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	media, err := newDispatcher(srv.URL, "").GenerateImage(context.Background(),
		valueobject.OpenAIImage{APIKey: "sk", Model: "gpt-image-1", Size: "1024x1024", Quality: "high"},
		detailed)
	require.NoError(t, err)
	assert.Equal(t, png, media.Data)
	assert.Equal(t, ".png", media.Ext)
	assert.Equal(t, "1024x1024", got.Size)
	assert.Equal(t, detailed, got.Prompt, "the dispatcher never rewrites prompts")
}

func TestOpenAIImage_HTTPErrorKeepsRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-request-id", "req_abc123")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your request was rejected by the safety system."}}`))
	}))
	defer srv.Close()

	_, err := newDispatcher(srv.URL, "").GenerateImage(context.Background(),
		valueobject.OpenAIImage{APIKey: "sk"}, "a cat")
	var pe *service.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "req_abc123", pe.RequestID)

	norm := service.NormalizeError(err, service.MediaImage, service.FamilyOpenAI)
	assert.Contains(t, norm.UserMessage, "safety")
	assert.Equal(t, "req_abc123", norm.RequestID)
}

func TestImage_DisabledIsConfigurationError(t *testing.T) {
	_, err := newDispatcher("", "").GenerateImage(context.Background(), valueobject.DisabledImage{Requested: "disabled"}, "cat")
	assert.True(t, domainErrors.IsConfiguration(err))
}

// videoServer rejects the first rejectN submissions with 400.
type videoServer struct {
	mu      sync.Mutex
	rejectN int
	shapes  []map[string]string
	polls   int
}

func (v *videoServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/videos":
			shape := map[string]string{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&shape))
			v.shapes = append(v.shapes, shape)
			if len(v.shapes) <= v.rejectN {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"Unknown parameter"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"video_1","status":"queued"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/videos/video_1":
			v.polls++
			status := "in_progress"
			if v.polls >= 2 {
				status = "completed"
			}
			_, _ = w.Write([]byte(`{"id":"video_1","status":"` + status + `"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/videos/video_1/content":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4data"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestOpenAIVideo_ShrinksPayloadOn400(t *testing.T) {
	vs := &videoServer{rejectN: 2}
	srv := httptest.NewServer(vs.handler(t))
	defer srv.Close()

	d := newDispatcher(srv.URL, "")
	var transitions []service.VideoTransition
	d.OnVideoTransition(func(tr service.VideoTransition) { transitions = append(transitions, tr) })

	media, err := d.GenerateVideo(context.Background(),
		valueobject.OpenAIVideo{APIKey: "sk", Model: "sora-2", Seconds: "8", Size: "1280x720"},
		"a paper boat", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4data"), media.Data)
	assert.Equal(t, ".mp4", media.Ext)

	require.Len(t, vs.shapes, 3)
	assert.Equal(t, "1280x720", vs.shapes[0]["size"])
	assert.Equal(t, "8", vs.shapes[0]["seconds"])
	assert.NotContains(t, vs.shapes[1], "size")
	assert.Equal(t, "8", vs.shapes[1]["seconds"])
	assert.NotContains(t, vs.shapes[2], "seconds")
	assert.Equal(t, "1280x720", vs.shapes[2]["size"])
	assert.NotEmpty(t, transitions)
	assert.Equal(t, service.VideoCompleted, transitions[len(transitions)-1].To)
}

func TestOpenAIVideo_AllShapesRejected(t *testing.T) {
	vs := &videoServer{rejectN: 10}
	srv := httptest.NewServer(vs.handler(t))
	defer srv.Close()

	_, err := newDispatcher(srv.URL, "").GenerateVideo(context.Background(),
		valueobject.OpenAIVideo{APIKey: "sk", Model: "sora-2", Seconds: "4", Size: "720x1280"},
		"a paper boat", nil)
	assert.True(t, service.IsHTTPStatus(err, http.StatusBadRequest))
	require.Len(t, vs.shapes, 4)
	assert.Equal(t, map[string]string{"model": "sora-2", "prompt": "a paper boat"}, vs.shapes[3])
}

func TestOpenAIVideo_ReferenceUsesMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "sora-2", r.FormValue("model"))
			_, hdr, err := r.FormFile("input_reference")
			require.NoError(t, err)
			assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
			_, _ = w.Write([]byte(`{"id":"video_2","status":"completed","url":"` + "http://" + r.Host + `/files/v.mp4"}`))
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("clip"))
	}))
	defer srv.Close()

	media, err := newDispatcher(srv.URL, "").GenerateVideo(context.Background(),
		valueobject.OpenAIVideo{APIKey: "sk", Model: "sora-2", Seconds: "4", Size: "720x1280"},
		"make it move", &service.MediaContent{Data: []byte{1, 2, 3}, ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, []byte("clip"), media.Data)
}

func TestVideo_DisabledIsConfigurationError(t *testing.T) {
	_, err := newDispatcher("", "").GenerateVideo(context.Background(), valueobject.DisabledVideo{Requested: "disabled"}, "a boat", nil)
	assert.True(t, domainErrors.IsConfiguration(err))
}

func TestKokoroSpeech_ResponseShapes(t *testing.T) {
	audio := []byte("RIFFwave")
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "raw audio",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "audio/wav")
				_, _ = w.Write(audio)
			},
		},
		{
			name: "json with download url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/files/out.wav" {
					_, _ = w.Write(audio)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"download_url":"/files/out.wav"}`))
			},
		},
		{
			name: "json with base64",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"audio":"` + base64.StdEncoding.EncodeToString(audio) + `"}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			media, err := newDispatcher("", srv.URL).Synthesize(context.Background(),
				valueobject.LocalSpeech{Voice: "af_heart", Format: "wav", Speed: 1},
				service.SpeechRequest{Text: "hi"})
			require.NoError(t, err)
			assert.Equal(t, audio, media.Data)
			assert.Equal(t, ".wav", media.Ext)
		})
	}
}

func TestKokoroVoices(t *testing.T) {
	for name, body := range map[string]string{
		"ids":     `{"voices":["af_heart","am_adam"]}`,
		"objects": `[{"id":"af_heart","name":"Heart"},{"id":"am_adam"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/audio/voices", r.URL.Path)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			voices, err := newDispatcher("", srv.URL).Voices(context.Background())
			require.NoError(t, err)
			require.Len(t, voices, 2)
			assert.Equal(t, "af_heart", voices[0].ID)
			assert.Equal(t, "am_adam", voices[1].Name)
		})
	}
}

func TestTxt2Img_PayloadAndAuth(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/txt2img", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"images":["data:image/png;base64,` + base64.StdEncoding.EncodeToString(png) + `"]}`))
	}))
	defer srv.Close()

	media, err := newDispatcher("", "").GenerateImage(context.Background(), valueobject.LocalImage{
		BaseURL:    srv.URL,
		AuthHeader: valueobject.BasicAuthHeader("user:pass"),
		Width:      512,
		Height:     768,
		Steps:      30,
		CFGScale:   7,
		Sampler:    "DPM++ 2M",
		Checkpoint: "sdxl.safetensors",
		Seed:       -1,
		Additional: map[string]any{"steps": 12, "restore_faces": true},
	}, "a lighthouse")
	require.NoError(t, err)
	assert.Equal(t, png, media.Data)

	assert.Equal(t, float64(512), got["width"])
	assert.Equal(t, float64(12), got["steps"])
	assert.Equal(t, true, got["restore_faces"])
	assert.Equal(t, "DPM++ 2M", got["sampler_name"])
	assert.Equal(t, service.LocalNegativePrompt(false), got["negative_prompt"])
	assert.Equal(t, map[string]any{"sd_model_checkpoint": "sdxl.safetensors"}, got["override_settings"])
	assert.Contains(t, got["prompt"], "lighthouse")
}
