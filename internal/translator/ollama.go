package translator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var DefaultOllamaModels = []string{
	"llama3.2",
	"gemma2:2b",
	"qwen2.5:3b",
	"mistral:7b",
	"phi4:14b",
}

// OllamaService runs translations on a local Ollama server. The chat reply
// is streamed as newline-delimited JSON.
type OllamaService struct {
	*PromptAdapter
}

func NewOllamaService(cfg ServiceConfig, deps Deps) *OllamaService {
	desc := Descriptor{
		Name:     "ollama",
		Alias:    "Ollama",
		Free:     true,
		HTMLSafe: true,
		Endpoint: "http://localhost:11434",
		Tuning:   Tuning{Timeout: 3 * defaultTimeout, MaxAttempts: 2, Concurrency: 1, MaxChars: 4000},
	}
	return &OllamaService{PromptAdapter: newPromptAdapter(desc, DefaultOllamaModels, cfg, deps)}
}

func (s *OllamaService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *OllamaService) attempt(ctx context.Context, req Request, _ string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}

	pr := newPrompt(req, src, tgt)
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", s.model())
	body, _ = sjson.SetBytes(body, "messages.0.role", "system")
	body, _ = sjson.SetBytes(body, "messages.0.content", pr.system)
	body, _ = sjson.SetBytes(body, "messages.1.role", "user")
	body, _ = sjson.SetBytes(body, "messages.1.content", pr.user)
	body, _ = sjson.SetBytes(body, "options.temperature", 0.2)
	body, _ = sjson.SetBytes(body, "stream", true)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.desc.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	out, err := s.base.stream(httpReq, s.readChat)
	if err != nil {
		return "", err
	}
	return s.finish(pr, out)
}

func (s *OllamaService) readChat(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, streamScannerBuffer)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res := gjson.ParseBytes(line)
		if msg := res.Get("error").String(); msg != "" {
			return "", s.upstreamFormat(msg)
		}
		sb.WriteString(res.Get("message.content").String())
		if res.Get("done").Bool() {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%s: reading stream: %w", s.desc.Name, err)
	}
	return sb.String(), nil
}

// Available checks that the Ollama server answers.
func (s *OllamaService) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.desc.Endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	_, err = s.do(req)
	return err
}
