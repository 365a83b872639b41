package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// httpEngine posts form-encoded text to a gTTS/Piper style endpoint and reads
// the encoded audio from the response body.
type httpEngine struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEngine builds the HTTP engine. A zero timeout leaves requests bounded
// only by the caller's context.
func NewHTTPEngine(endpoint string, timeout time.Duration) Engine {
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &httpEngine{endpoint: endpoint, client: client}
}

func (h *httpEngine) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	var buf bytes.Buffer
	format, err := h.SynthesizeTo(ctx, req, &buf)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: buf.Bytes(), Format: format}, nil
}

func (h *httpEngine) SynthesizeTo(ctx context.Context, req Request, w io.Writer) (string, error) {
	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("lang", req.Language)
	form.Set("slow", strconv.FormatBool(req.Slow))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tts endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read tts response: %w", err)
	}
	return formatFromContentType(resp.Header.Get("Content-Type")), nil
}

func formatFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatMP3
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return FormatWAV
	default:
		return FormatMP3
	}
}
