package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chris/helpem/internal/voice"
)

// maxAudioBytes is the upload ceiling of the transcription API.
const maxAudioBytes = 25 << 20

// transcribe accepts either a multipart form with an "audio" file or the
// raw audio as the request body.
func (h *handler) transcribe(c *gin.Context) {
	if h.Transcriber == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "transcription is not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBytes)

	audio, contentType, err := readAudio(c)
	if err != nil {
		badRequest(c, "could not read audio")
		return
	}
	if len(audio) == 0 {
		badRequest(c, "audio is required")
		return
	}

	text, err := h.Transcriber.Transcribe(c.Request.Context(), audio, contentType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func readAudio(c *gin.Context) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(c.ContentType())
	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(c.Request.Body)
		return data, mediaType, err
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		return nil, "", err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	return data, fh.Header.Get("Content-Type"), err
}

type speechRequest struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice"`
}

func (h *handler) speak(c *gin.Context) {
	if h.Speaker == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "speech is not configured"})
		return
	}
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		badRequest(c, "text is required")
		return
	}
	if req.Voice != "" && !voice.ValidVoice(req.Voice) {
		badRequest(c, "voice must be one of "+strings.Join(voice.Voices, ", "))
		return
	}

	audio, err := h.Speaker.Speak(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (h *handler) usage(c *gin.Context) {
	stats, err := h.Quota.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
