package translator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/valpere/tlumach/internal/placeholder"
	"github.com/valpere/tlumach/internal/postprocess"
)

const streamScannerBuffer = 1 << 20

// chatAuthSignatures cover the OpenAI-compatible gateways.
var chatAuthSignatures = []string{
	"status 401",
	"invalid_api_key",
	"Incorrect API key",
	"No auth credentials",
	"User not found",
	"Authentication Fails",
}

// PromptAdapter turns an OpenAI-compatible chat completions endpoint into a
// translation provider. The reply is streamed and cleaned of LLM artifacts.
type PromptAdapter struct {
	*base
	models    []string
	headers   http.Header
	streaming bool
}

func newPromptAdapter(desc Descriptor, defaultModels []string, cfg ServiceConfig, deps Deps) *PromptAdapter {
	models := cfg.Models
	if cfg.Model != "" {
		models = []string{cfg.Model}
	}
	if len(models) == 0 {
		models = defaultModels
	}
	return &PromptAdapter{
		base:      newBase(desc, cfg, deps),
		models:    models,
		headers:   http.Header{},
		streaming: true,
	}
}

func (p *PromptAdapter) Translate(ctx context.Context, req Request) (string, error) {
	return p.run(ctx, req, p.attempt)
}

// Models returns the model pool a request picks from.
func (p *PromptAdapter) Models() []string {
	return p.models
}

func (p *PromptAdapter) model() string {
	return p.models[rand.Intn(len(p.models))]
}

func (p *PromptAdapter) attempt(ctx context.Context, req Request, apiKey string) (string, error) {
	src, tgt, err := p.codes(req)
	if err != nil {
		return "", err
	}

	pr := newPrompt(req, src, tgt)
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", p.model())
	body, _ = sjson.SetBytes(body, "messages.0.role", "system")
	body, _ = sjson.SetBytes(body, "messages.0.content", pr.system)
	body, _ = sjson.SetBytes(body, "messages.1.role", "user")
	body, _ = sjson.SetBytes(body, "messages.1.content", pr.user)
	body, _ = sjson.SetBytes(body, "temperature", 0.2)
	body, _ = sjson.SetBytes(body, "stream", p.streaming)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.desc.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header[k] = v
	}

	out, err := p.base.stream(httpReq, p.readCompletion)
	if err != nil {
		return "", err
	}
	return p.finish(pr, out)
}

// prompt is the chat input for one request. Code spans and URLs in plain
// text are shielded behind placeholders.
type prompt struct {
	system    string
	user      string
	originals []string
}

func newPrompt(req Request, src, tgt string) prompt {
	user, originals := req.Text, []string(nil)
	if req.Kind == KindText {
		user, originals = placeholder.Protect(req.Text, false)
	}
	return prompt{
		system:    buildSystemPrompt(languageName(src), languageName(tgt), req.Kind, len(originals) > 0),
		user:      user,
		originals: originals,
	}
}

// finish strips LLM artifacts from a reply and restores shielded spans.
func (p *PromptAdapter) finish(pr prompt, out string) (string, error) {
	out = postprocess.Clean(out)
	if out == "" {
		return "", p.upstreamFormat("empty completion")
	}
	if missing := placeholder.Missing(out, pr.originals); len(missing) > 0 {
		p.log.WithField("missing", missing).Debug("model dropped placeholders")
	}
	return placeholder.Restore(out, pr.originals), nil
}

// readCompletion accepts either an SSE stream of deltas or a plain JSON
// completion, since some gateways ignore "stream": true.
func (p *PromptAdapter) readCompletion(r io.Reader) (string, error) {
	var sb strings.Builder
	var plain bytes.Buffer
	sawEvent := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, streamScannerBuffer)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			if !sawEvent {
				plain.Write(line)
			}
			continue
		}
		sawEvent = true
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if bytes.Equal(payload, []byte("[DONE]")) {
			break
		}
		if msg := gjson.GetBytes(payload, "error.message").String(); msg != "" {
			return "", p.upstreamFormat(msg)
		}
		sb.WriteString(gjson.GetBytes(payload, "choices.0.delta.content").String())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%s: reading stream: %w", p.desc.Name, err)
	}
	if sawEvent {
		return sb.String(), nil
	}

	res := gjson.ParseBytes(plain.Bytes())
	if msg := res.Get("error.message").String(); msg != "" {
		return "", p.upstreamFormat(msg)
	}
	return res.Get("choices.0.message.content").String(), nil
}

// languageName spells a language code out in English for the prompt.
func languageName(code string) string {
	if code == "" {
		return "the detected language"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

func buildSystemPrompt(sourceLang, targetLang string, kind Kind, shielded bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a professional translator. Translate the following text from %s to %s.\n", sourceLang, targetLang))
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, just the translation.")
	if kind == KindHTML {
		sb.WriteString(" The text is an HTML fragment: keep every tag and attribute exactly as it is and translate only the human-readable text.")
	}
	if shielded {
		sb.WriteString(" ")
		sb.WriteString(placeholder.Hint())
	}
	return sb.String()
}
