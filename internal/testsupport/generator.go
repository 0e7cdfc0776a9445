package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"bookloom/internal/services/genai"
)

// Responder produces a fake provider result for one request.
type Responder func(ctx context.Context, req genai.Request) (genai.Result, error)

// FakeGenerator is an in-memory genai.Generator. Responders are keyed by
// request purpose; unknown purposes fall back to Default.
type FakeGenerator struct {
	mu       sync.Mutex
	handlers map[string]Responder
	requests []genai.Request

	// Default answers purposes without a responder.
	Default Responder
}

// NewFakeGenerator returns a generator that answers text, image, and speech
// requests with deterministic content.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{
		handlers: make(map[string]Responder),
		Default: func(_ context.Context, req genai.Request) (genai.Result, error) {
			return DefaultResponse(req)
		},
	}
}

// Handle registers fn for requests with purpose.
func (f *FakeGenerator) Handle(purpose string, fn Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[purpose] = fn
}

// Generate implements genai.Generator.
func (f *FakeGenerator) Generate(ctx context.Context, req genai.Request) (genai.Result, error) {
	if err := ctx.Err(); err != nil {
		return genai.Result{}, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.handlers[req.Purpose]
	if fn == nil {
		fn = f.Default
	}
	f.mu.Unlock()
	return fn(ctx, req)
}

// Requests returns the requests received so far.
func (f *FakeGenerator) Requests() []genai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]genai.Request(nil), f.requests...)
}

// Count returns how many requests with purpose were received.
func (f *FakeGenerator) Count(purpose string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if req.Purpose == purpose {
			n++
		}
	}
	return n
}

// DefaultResponse answers by modality. Text is billed at one token per word,
// speech at one unit per character.
func DefaultResponse(req genai.Request) (genai.Result, error) {
	switch req.Modality {
	case genai.ModalityImage:
		return genai.Result{Data: PNG(64, 48), MIMEType: "image/png", Usage: genai.Usage{Tokens: 100}}, nil
	case genai.ModalitySpeech:
		return genai.Result{
			Data:     []byte("audio:" + req.Prompt + "|"),
			MIMEType: "audio/mpeg",
			Usage:    genai.Usage{Characters: int64(len([]rune(req.Prompt)))},
		}, nil
	}
	content := Prose(req.Prompt, 48)
	return genai.Result{Content: content, Usage: genai.Usage{Tokens: int64(len(strings.Fields(content)))}}, nil
}

// Prose returns deterministic filler text seeded by seed. Different seeds
// give texts with little vocabulary in common.
func Prose(seed string, words int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	state := h.Sum64()
	var b strings.Builder
	for i := 0; i < words; i++ {
		state = state*6364136223846793005 + 1442695040888963407
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "word%03d", (state>>33)%500)
		if i%8 == 7 || i == words-1 {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// OutlineJSON renders an outline response with n chapters.
func OutlineJSON(title string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"title": %q, "style": "warm watercolor", "chapters": [`, title)
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"index": %d, "title": "part %d of the voyage", "synopsis": "Event number %d happens."}`, i, i, i)
	}
	b.WriteString("]}")
	return b.String()
}

// PNG encodes a solid test image.
func PNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
