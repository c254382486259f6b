package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Word is one recognized token with its confidence and bounding box
// (x, y, w, h). Engines that do not expose layout leave Words empty.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

// Result is the uniform engine output: full text plus a 0-100 confidence.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

func (r *Result) Usable() bool {
	return r != nil && strings.TrimSpace(r.Text) != ""
}

// Engine is the black-box OCR contract: image bytes in, text out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (*Result, error)
}

// NamedResult pairs an engine name with its (possibly degraded) result.
type NamedResult struct {
	Engine string
	Result Result
}

type Factory func(args interface{}) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(name string, args interface{}) (Engine, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ocr engine type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported ocr engine: %s", name)
	}
	return factory(args)
}

// RecognizeAll runs every engine concurrently on one image. A failing
// engine degrades to an empty zero-confidence result instead of failing
// the call, so consensus can still be built from whatever answered.
func RecognizeAll(ctx context.Context, engines []Engine, image []byte) []NamedResult {
	results := make([]NamedResult, len(engines))
	grp, gctx := errgroup.WithContext(ctx)
	for i, engine := range engines {
		results[i].Engine = engine.Name()
		grp.Go(func() error {
			res, err := engine.Recognize(gctx, image)
			if err != nil || res == nil {
				logutil.GetLogger(ctx).Warn("ocr engine failed",
					zap.String("engine", engine.Name()),
					zap.Error(err),
				)
				return nil
			}
			results[i].Result = *res
			return nil
		})
	}
	_ = grp.Wait()
	return results
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("engine config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode engine config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode engine config: %w", err)
	}
	return nil
}
