package translator

import (
	"context"
	"net/http"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleCloudService uses the Cloud Translation v2 API with an API key.
// It translates HTML natively, so the segmenter can be skipped for it.
type GoogleCloudService struct {
	*base
}

// NewGoogleCloudService creates the credentialed Google Cloud provider.
func NewGoogleCloudService(cfg ServiceConfig, deps Deps) *GoogleCloudService {
	return &GoogleCloudService{base: newBase(Descriptor{
		Name:            "googlecloud",
		Alias:           "Google Cloud Translation",
		NeedsCredential: true,
		HTMLSafe:        true,
		AutoCode:        "",
		Languages: languageTable(map[string]string{
			"chinese":               "zh-CN",
			"chinese (simplified)":  "zh-CN",
			"chinese (traditional)": "zh-TW",
		}),
		Tuning: Tuning{Timeout: 15 * time.Second, MaxAttempts: 3, Concurrency: 4},
		AuthSignatures: []string{
			"API key not valid",
			"API_KEY_INVALID",
			"PERMISSION_DENIED",
			"Error 401",
			"Error 403",
		},
	}, cfg, deps)}
}

func (s *GoogleCloudService) Translate(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, req, s.attempt)
}

func (s *GoogleCloudService) attempt(ctx context.Context, req Request, apiKey string) (string, error) {
	src, tgt, err := s.codes(req)
	if err != nil {
		return "", err
	}
	targetTag, err := language.Parse(tgt)
	if err != nil {
		return "", err
	}

	// The key travels as a query parameter on our own client so that the
	// identity-rotating transport stays in the path.
	httpClient := &http.Client{Transport: &apiKeyTransport{key: apiKey, base: s.client.Transport}}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.desc.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.desc.Endpoint+"/"))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", err
	}
	defer client.Close()

	options := &translate.Options{Format: translate.Text}
	if req.Kind == KindHTML {
		options.Format = translate.HTML
	}
	if src != "" {
		sourceTag, err := language.Parse(src)
		if err != nil {
			return "", err
		}
		options.Source = sourceTag
	}

	translations, err := client.Translate(ctx, []string{req.Text}, targetTag, options)
	if err != nil {
		return "", err
	}
	if len(translations) == 0 || translations[0].Text == "" {
		return "", s.upstreamFormat("no translation returned")
	}
	return translations[0].Text, nil
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	q := r.URL.Query()
	q.Set("key", t.key)
	r.URL.RawQuery = q.Encode()
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
