package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/segmenter"
	"github.com/valpere/tlumach/internal/translator"
)

type mockService struct {
	desc          translator.Descriptor
	translateFunc func(ctx context.Context, req translator.Request) (string, error)
	callCount     atomic.Int32
}

func newMock(name string, free bool, fn func(ctx context.Context, req translator.Request) (string, error)) *mockService {
	return &mockService{
		desc:          translator.Descriptor{Name: name, Free: free},
		translateFunc: fn,
	}
}

func (m *mockService) Descriptor() *translator.Descriptor { return &m.desc }

func (m *mockService) Translate(ctx context.Context, req translator.Request) (string, error) {
	m.callCount.Add(1)
	if m.translateFunc != nil {
		return m.translateFunc(ctx, req)
	}
	return "mock result", nil
}

func (m *mockService) LanguageCode(lang string) (string, bool) { return lang, true }
func (m *mockService) IsRecoverable(err error) bool          { return translator.IsRecoverable(err) }
func (m *mockService) IsAuthFailure(err error) bool          { return false }

func upper(_ context.Context, req translator.Request) (string, error) {
	return strings.ToUpper(req.Text), nil
}

func constant(s string) func(context.Context, translator.Request) (string, error) {
	return func(context.Context, translator.Request) (string, error) { return s, nil }
}

func failing(_ context.Context, _ translator.Request) (string, error) {
	return "", errors.New("service unavailable")
}

var fastSegments = segmenter.Options{WavePause: time.Millisecond}

func TestOrchestrator_New_Defaults(t *testing.T) {
	o := New([]translator.Provider{newMock("mock1", false, nil)}, Config{})

	if o.config.Mode != ModeMulti {
		t.Errorf("expected mode %q, got %q", ModeMulti, o.config.Mode)
	}
	if o.config.Merge != MergeFirst {
		t.Errorf("expected merge %q, got %q", MergeFirst, o.config.Merge)
	}
	if o.config.SourceLang != "auto" {
		t.Errorf("expected source auto, got %q", o.config.SourceLang)
	}
	if o.config.FreeOnlyThreshold != DefaultFreeOnlyThreshold {
		t.Errorf("expected threshold %d, got %d", DefaultFreeOnlyThreshold, o.config.FreeOnlyThreshold)
	}
}

func TestOrchestrator_Execute_WaitsForAll(t *testing.T) {
	slow := newMock("slow", false, func(ctx context.Context, req translator.Request) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "slow", nil
	})
	fast := newMock("fast", false, constant("fast"))
	bad := newMock("bad", false, failing)

	o := New([]translator.Provider{slow, fast, bad}, Config{})
	result := o.Execute(context.Background(), o.Providers(), translator.Request{Text: "Hello", TargetLang: "uk"})

	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 succeeded / 1 failed, got %d / %d", result.Succeeded, result.Failed)
	}
	if result.Results[0].Provider != "slow" || result.Results[1].Provider != "fast" {
		t.Errorf("results not in provider order: %+v", result.Results)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Error(), "bad") {
		t.Errorf("expected error tagged with provider name, got %v", result.Errors)
	}
}

func TestOrchestrator_Translate_BlankText(t *testing.T) {
	svc := newMock("mock1", false, upper)
	o := New([]translator.Provider{svc}, Config{})

	got, err := o.Translate(context.Background(), "   ", "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "   " {
		t.Errorf("expected blank text unchanged, got %q", got)
	}
	if svc.callCount.Load() != 0 {
		t.Error("provider must not be called for blank text")
	}
}

func TestOrchestrator_Translate_FirstMergeUsesPriorityOrder(t *testing.T) {
	first := newMock("first", false, func(ctx context.Context, req translator.Request) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "from first", nil
	})
	second := newMock("second", false, constant("from second"))

	for _, merge := range []Merge{MergeFirst, MergeVote, MergeAverage} {
		o := New([]translator.Provider{first, second}, Config{Merge: merge})
		got, err := o.Translate(context.Background(), "Hello", "uk")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", merge, err)
		}
		if got != "from first" {
			t.Errorf("%s: expected first provider's text, got %q", merge, got)
		}
	}
}

func TestOrchestrator_Translate_PartialFailure(t *testing.T) {
	bad := newMock("bad", false, failing)
	good := newMock("good", false, upper)

	o := New([]translator.Provider{bad, good}, Config{})
	got, err := o.Translate(context.Background(), "hello", "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "HELLO" {
		t.Errorf("expected HELLO, got %q", got)
	}
}

func TestOrchestrator_Translate_FallsBackToFree(t *testing.T) {
	var freeCalls atomic.Int32
	free := newMock("free", true, func(ctx context.Context, req translator.Request) (string, error) {
		if freeCalls.Add(1) == 1 {
			return "", errors.New("temporary glitch")
		}
		return "recovered", nil
	})
	paid := newMock("paid", false, failing)

	o := New([]translator.Provider{paid, free}, Config{})
	got, err := o.Translate(context.Background(), "hello", "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("expected fallback result, got %q", got)
	}
	if free.callCount.Load() != 2 {
		t.Errorf("expected free provider called twice, got %d", free.callCount.Load())
	}
}

func TestOrchestrator_Translate_AllFail(t *testing.T) {
	o := New([]translator.Provider{
		newMock("a", false, failing),
		newMock("b", true, failing),
	}, Config{})

	_, err := o.Translate(context.Background(), "hello", "uk")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestOrchestrator_Translate_EmptyAnswerIsFailure(t *testing.T) {
	o := New([]translator.Provider{newMock("blank", false, constant("  "))}, Config{})
	_, err := o.Translate(context.Background(), "hello", "uk")
	if !errors.Is(err, ErrAllProvidersFailed) || !errors.Is(err, translator.ErrUpstreamFormat) {
		t.Fatalf("expected wrapped ErrUpstreamFormat, got %v", err)
	}
}

func TestOrchestrator_Translate_SingleMode(t *testing.T) {
	first := newMock("first", false, failing)
	second := newMock("second", true, upper)

	o := New([]translator.Provider{first, second}, Config{Mode: ModeSingle})
	_, err := o.Translate(context.Background(), "hello", "uk")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if second.callCount.Load() != 0 {
		t.Error("single mode must not call other providers")
	}
}

func TestOrchestrator_Translate_CacheIdempotent(t *testing.T) {
	a := newMock("a", false, upper)
	b := newMock("b", false, upper)
	c := cache.New(cache.Options{})

	o := New([]translator.Provider{a, b}, Config{Cache: c})
	ctx := context.Background()

	first, err := o.Translate(ctx, "hello", "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.Translate(ctx, "hello", "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("cached result differs: %q vs %q", first, second)
	}
	if a.callCount.Load() != 1 || b.callCount.Load() != 1 {
		t.Errorf("expected one call per provider, got %d and %d", a.callCount.Load(), b.callCount.Load())
	}
	if _, ok := c.Get("hello", "auto", "uk", "b"); !ok {
		t.Error("expected cache entry for every invoked provider")
	}

	if err := o.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if _, err := o.Translate(ctx, "hello", "uk"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.callCount.Load() != 2 {
		t.Errorf("expected provider called again after clear, got %d", a.callCount.Load())
	}
}

func TestOrchestrator_Translate_Timeout(t *testing.T) {
	slow := newMock("slow", false, func(ctx context.Context, req translator.Request) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})
	o := New([]translator.Provider{slow}, Config{Timeout: 20 * time.Millisecond})

	_, err := o.Translate(context.Background(), "hello", "uk")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type fixedResolver string

func (f fixedResolver) Resolve(text, lang string) string {
	if lang == "auto" {
		return string(f)
	}
	return lang
}

func TestOrchestrator_Translate_ResolvesSource(t *testing.T) {
	var seen atomic.Value
	svc := newMock("mock", false, func(ctx context.Context, req translator.Request) (string, error) {
		seen.Store(req.SourceLang)
		return "ok", nil
	})
	o := New([]translator.Provider{svc}, Config{Detector: fixedResolver("de")})

	if _, err := o.Translate(context.Background(), "Guten Tag", "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.Load() != "de" {
		t.Errorf("expected detected source de, got %v", seen.Load())
	}
}

func TestOrchestrator_TranslateHTML_PreservesStructure(t *testing.T) {
	o := New([]translator.Provider{newMock("upper", false, upper)}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), "<p>Hello</p><p>World</p>", "uk")
	if got != "<p>HELLO</p><p>WORLD</p>" {
		t.Errorf("unexpected markup: %q", got)
	}
}

func TestOrchestrator_TranslateHTML_NoTags(t *testing.T) {
	o := New([]translator.Provider{newMock("upper", false, upper)}, Config{})
	if got := o.TranslateHTML(context.Background(), "plain text", "uk"); got != "PLAIN TEXT" {
		t.Errorf("expected PLAIN TEXT, got %q", got)
	}

	broken := New([]translator.Provider{newMock("bad", false, failing)}, Config{})
	if got := broken.TranslateHTML(context.Background(), "plain text", "uk"); got != "plain text" {
		t.Errorf("expected original on failure, got %q", got)
	}
}

func TestOrchestrator_TranslateHTML_SkipsIgnoredTags(t *testing.T) {
	o := New([]translator.Provider{newMock("upper", false, upper)}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), "<p>Hello</p><script>var x = 1;</script><code>keep me</code>", "uk")
	if got != "<p>HELLO</p><script>var x = 1;</script><code>keep me</code>" {
		t.Errorf("unexpected markup: %q", got)
	}
}

func TestOrchestrator_TranslateHTML_PartialFailure(t *testing.T) {
	svc := newMock("picky", false, func(ctx context.Context, req translator.Request) (string, error) {
		if strings.Contains(req.Text, "World") {
			return "", errors.New("refused")
		}
		return strings.ToUpper(req.Text), nil
	})
	o := New([]translator.Provider{svc}, Config{
		Segmenter: segmenter.Options{SmallNode: 1, WavePause: time.Millisecond},
	})

	got := o.TranslateHTML(context.Background(), "<p>Hello</p><p>World</p>", "uk")
	if got != "<p>HELLO</p><p>World</p>" {
		t.Errorf("unexpected markup: %q", got)
	}
}

func TestOrchestrator_TranslateHTML_LineMismatchFallsBackPerNode(t *testing.T) {
	svc := newMock("joiner", false, func(ctx context.Context, req translator.Request) (string, error) {
		return strings.ToUpper(strings.ReplaceAll(req.Text, "\n", " ")), nil
	})
	o := New([]translator.Provider{svc}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), "<li>One</li><li>Two</li>", "uk")
	if got != "<li>ONE</li><li>TWO</li>" {
		t.Errorf("unexpected markup: %q", got)
	}
	if svc.callCount.Load() != 3 {
		t.Errorf("expected one group call and two node calls, got %d", svc.callCount.Load())
	}
}

func TestOrchestrator_TranslateHTML_ManyNodesPreferFree(t *testing.T) {
	free := newMock("free", true, upper)
	paid := newMock("paid", false, constant("PAID"))

	var sb strings.Builder
	for i := 0; i < 12; i++ {
		sb.WriteString("<span>word</span>")
	}
	o := New([]translator.Provider{paid, free}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), sb.String(), "uk")
	if strings.Contains(got, "PAID") {
		t.Errorf("expected free provider output only, got %q", got)
	}
	if paid.callCount.Load() != 0 {
		t.Errorf("expected paid provider unused, got %d calls", paid.callCount.Load())
	}
	if free.callCount.Load() == 0 {
		t.Error("expected free provider to be called")
	}
}

func TestOrchestrator_TranslateHTML_SingleModeDirect(t *testing.T) {
	svc := newMock("htmlsafe", false, func(ctx context.Context, req translator.Request) (string, error) {
		if req.Kind != translator.KindHTML {
			return "", errors.New("expected html request")
		}
		return "<p>DIRECT</p>", nil
	})
	svc.desc.HTMLSafe = true

	o := New([]translator.Provider{svc}, Config{Mode: ModeSingle})
	got := o.TranslateHTML(context.Background(), "<p>Hello</p>", "uk")
	if got != "<p>DIRECT</p>" {
		t.Errorf("unexpected markup: %q", got)
	}
	if svc.callCount.Load() != 1 {
		t.Errorf("expected a single call, got %d", svc.callCount.Load())
	}
}

func TestOrchestrator_TranslateHTML_CharacterReferences(t *testing.T) {
	o := New([]translator.Provider{newMock("upper", false, upper)}, Config{Segmenter: fastSegments})

	in := "<p>Don&#39;t stop</p><p>Hello&nbsp;world</p><p>&quot;Quoted&quot; text</p><p>plain</p>"
	want := "<p>DON'T STOP</p><p>HELLO\u00a0WORLD</p><p>\"QUOTED\" TEXT</p><p>PLAIN</p>"
	if got := o.TranslateHTML(context.Background(), in, "uk"); got != want {
		t.Errorf("unexpected markup:\n got  %q\n want %q", got, want)
	}
}

func TestOrchestrator_TranslateHTML_IgnoredTextMatchingNode(t *testing.T) {
	o := New([]translator.Provider{newMock("upper", false, upper)}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), "<code>Hello</code><p>Hello</p>", "uk")
	if got != "<code>Hello</code><p>HELLO</p>" {
		t.Errorf("unexpected markup: %q", got)
	}
}

func TestOrchestrator_TranslateHTML_MultilineNodeStaysGrouped(t *testing.T) {
	svc := newMock("upper", false, upper)
	o := New([]translator.Provider{svc}, Config{Segmenter: fastSegments})

	got := o.TranslateHTML(context.Background(), "<p>first\n  line</p><p>second</p>", "uk")
	if got != "<p>FIRST LINE</p><p>SECOND</p>" {
		t.Errorf("unexpected markup: %q", got)
	}
	if svc.callCount.Load() != 1 {
		t.Errorf("expected one group call, got %d", svc.callCount.Load())
	}
}
