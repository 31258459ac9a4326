package service

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/timmy/assetlens/internal/domain"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeClassifier struct {
	detections []domain.Detection
	err        error
	panicWith  any
	classify   func(img image.Image) []domain.Detection
	calls      atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, img image.Image) ([]domain.Detection, error) {
	f.calls.Add(1)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.classify != nil {
		return f.classify(img), nil
	}
	return f.detections, nil
}

type fakeDescriber struct {
	available bool
	desc      domain.Description
	calls     atomic.Int32
}

func (f *fakeDescriber) Provider() string { return "local" }
func (f *fakeDescriber) Available() bool  { return f.available }

func (f *fakeDescriber) Describe(context.Context, image.Image) domain.Description {
	f.calls.Add(1)
	return f.desc
}

// hashEmbedder is a deterministic bag-of-words embedder: each lowercase
// token increments one hashed bucket, and the vector is L2-normalized.
type hashEmbedder struct {
	dim       int
	available bool
	err       error
	calls     atomic.Int32
}

func newHashEmbedder(dim int) *hashEmbedder {
	return &hashEmbedder{dim: dim, available: true}
}

func (e *hashEmbedder) Provider() string { return "fake" }
func (e *hashEmbedder) Model() string    { return "bag-of-words" }
func (e *hashEmbedder) Dimensions() int  { return e.dim }
func (e *hashEmbedder) Available() bool  { return e.available }

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if !e.available {
		return nil, errEmbedderUnavailable(e.Provider())
	}
	if e.err != nil {
		return nil, e.err
	}
	if err := checkEmbedText(text); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(tok, ".,")))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		n := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []domain.AssetEntry
	failAll bool
}

func (l *fakeLedger) Record(_ context.Context, entry *domain.AssetEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll {
		return errors.New("ledger down")
	}
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *fakeLedger) ListByAssetID(_ context.Context, assetID string) ([]domain.AssetEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.AssetEntry
	for _, e := range l.entries {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) DeleteByAssetID(_ context.Context, assetID string, keep ...string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	var n int64
	for _, e := range l.entries {
		if e.AssetID == assetID && !slices.Contains(keep, e.RecordID) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return n, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	audits []domain.ModerationAudit
}

func (a *fakeAudit) Archive(_ context.Context, audit *domain.ModerationAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits = append(a.audits, *audit)
	return nil
}

type fakeJobs struct {
	mu      sync.Mutex
	created []domain.IngestJob
	saved   []domain.IngestJob
}

func (j *fakeJobs) Create(_ context.Context, job *domain.IngestJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = append(j.created, *job)
	return nil
}

func (j *fakeJobs) Save(_ context.Context, job *domain.IngestJob) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved = append(j.saved, *job)
	return nil
}
