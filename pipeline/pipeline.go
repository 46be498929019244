// Package pipeline turns a NutrientProfile into a HEALTHY/UNHEALTHY verdict:
// assemble, normalize with the fitted transform, classify with the fitted
// model.
package pipeline

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"nutriscan/ml"
)

// Observer receives the outcome of every Classify call.
type Observer interface {
	ObserveResult(result Result, cached bool, elapsed time.Duration)
	ObserveError(err error)
	ObserveUnexpectedClass(class int)
}

// Option configures a Pipeline in New.
type Option func(*Pipeline) error

// WithNegativePolicy sets how negative nutrient values are handled.
func WithNegativePolicy(policy NegativePolicy) Option {
	return func(p *Pipeline) error {
		p.assembler = NewAssembler(policy)
		return nil
	}
}

// WithCache memoizes results by assembled vector. A size of zero disables
// the cache.
func WithCache(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			p.cache = nil
			return nil
		}
		cache, err := lru.New[Vector, Result](size)
		if err != nil {
			return fmt.Errorf("create result cache: %w", err)
		}
		p.cache = cache
		return nil
	}
}

// WithLogger sets the logger used for unexpected model output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithObserver reports every Classify outcome to observer.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) error {
		p.observer = observer
		return nil
	}
}

// Pipeline holds the loaded artifacts. It never mutates them and is safe for
// concurrent use. A nil transform or model leaves the pipeline unavailable.
type Pipeline struct {
	transform ml.Transform
	model     ml.Classifier
	assembler *Assembler
	cache     *lru.Cache[Vector, Result]
	logger    *zap.Logger
	observer  Observer
}

// New builds a pipeline over the loaded artifacts. Either may be nil, in
// which case every Classify call reports it as unavailable.
func New(transform ml.Transform, model ml.Classifier, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		transform: transform,
		model:     model,
		assembler: NewAssembler(NegativeReject),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Check reports whether the pipeline can serve requests.
func (p *Pipeline) Check() error {
	if p.transform == nil {
		return ErrTransformUnavailable
	}
	if p.model == nil {
		return ErrModelUnavailable
	}
	if w := p.transform.InputWidth(); w != FeatureCount {
		return fmt.Errorf("%w: transform expects %d features, profile has %d", ErrDimensionMismatch, w, FeatureCount)
	}
	if w := p.model.InputWidth(); w != FeatureCount {
		return fmt.Errorf("%w: model expects %d features, profile has %d", ErrDimensionMismatch, w, FeatureCount)
	}
	return nil
}

// Classify runs the whole pipeline for one profile. Nothing past the
// assembler runs when the profile is invalid.
func (p *Pipeline) Classify(profile NutrientProfile) (Result, error) {
	start := time.Now()
	result, cached, err := p.classify(profile)
	if p.observer != nil {
		if err != nil {
			p.observer.ObserveError(err)
		} else {
			p.observer.ObserveResult(result, cached, time.Since(start))
		}
	}
	return result, err
}

func (p *Pipeline) classify(profile NutrientProfile) (Result, bool, error) {
	if err := p.Check(); err != nil {
		return Result{}, false, err
	}
	vector, err := p.assembler.Assemble(profile)
	if err != nil {
		return Result{}, false, err
	}
	if p.cache != nil {
		if result, ok := p.cache.Get(vector); ok {
			return result, true, nil
		}
	}

	normalized, err := p.Normalize(vector)
	if err != nil {
		return Result{}, false, err
	}
	class, score, err := p.model.Predict(normalized)
	if err != nil {
		return Result{}, false, fmt.Errorf("classify: %w", err)
	}
	if class != 0 && class != 1 {
		p.logger.Warn("Model emitted a class outside {0,1}, treating as unhealthy", zap.Int("class", class))
		if p.observer != nil {
			p.observer.ObserveUnexpectedClass(class)
		}
	}

	result := Result{
		Label:      LabelFor(class),
		Prediction: class,
		Score:      score,
		Scored:     p.model.HasScore(),
	}
	if p.cache != nil {
		p.cache.Add(vector, result)
	}
	return result, false, nil
}

// Normalize applies the fitted transform to an assembled vector.
func (p *Pipeline) Normalize(vector Vector) ([]float64, error) {
	if p.transform == nil {
		return nil, ErrTransformUnavailable
	}
	normalized, err := p.transform.Transform(vector.Slice())
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if len(normalized) != FeatureCount {
		return nil, fmt.Errorf("%w: transform returned %d features", ErrDimensionMismatch, len(normalized))
	}
	return normalized, nil
}

func (p *Pipeline) Policy() NegativePolicy { return p.assembler.Policy() }

func (p *Pipeline) AssemblerStats() AssemblerStats { return p.assembler.Stats() }

// Artifacts describes the loaded artifacts for status reporting. Missing
// artifacts report an empty kind and zero width.
func (p *Pipeline) Artifacts() (transformKind string, transformWidth int, modelKind string, modelWidth int) {
	if p.transform != nil {
		transformKind, transformWidth = p.transform.Kind(), p.transform.InputWidth()
	}
	if p.model != nil {
		modelKind, modelWidth = p.model.Kind(), p.model.InputWidth()
	}
	return
}
