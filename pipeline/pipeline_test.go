package pipeline

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriscan/ml"
)

type fakeTransform struct {
	width int
	calls int
	mu    sync.Mutex
}

func (f *fakeTransform) Transform(vector []float64) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if len(vector) != f.width {
		return nil, ml.ErrDimensionMismatch
	}
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = v / 100
	}
	return out, nil
}

func (f *fakeTransform) InputWidth() int { return f.width }
func (f *fakeTransform) Kind() string    { return "fake" }

type fakeModel struct {
	width int
	class int
	score float64
	err   error
	calls int
}

func (f *fakeModel) Predict(features []float64) (int, float64, error) {
	f.calls++
	return f.class, f.score, f.err
}

func (f *fakeModel) InputWidth() int { return f.width }
func (f *fakeModel) HasScore() bool  { return f.score > 0 }
func (f *fakeModel) Kind() string    { return "fake" }

type recordingObserver struct {
	results    []Result
	cached     []bool
	errs       []error
	unexpected []int
}

func (o *recordingObserver) ObserveResult(r Result, cached bool, _ time.Duration) {
	o.results = append(o.results, r)
	o.cached = append(o.cached, cached)
}

func (o *recordingObserver) ObserveError(err error) { o.errs = append(o.errs, err) }

func (o *recordingObserver) ObserveUnexpectedClass(class int) {
	o.unexpected = append(o.unexpected, class)
}

// fittedPair is a standard scaler and a stump on calories chosen so the
// sample profile classifies as 1.
func fittedPair(t *testing.T) (ml.Transform, ml.Classifier) {
	t.Helper()
	transform, err := ml.DecodeTransform(strings.NewReader(`{
		"kind": "standard",
		"n_features_in": 9,
		"mean":  [250, 10, 30, 10, 3, 12, 400, 40, 200],
		"scale": [100, 5, 15, 8, 2, 9, 300, 50, 80]
	}`))
	require.NoError(t, err)
	model, err := ml.DecodeClassifier(strings.NewReader(`{
		"kind": "random_forest",
		"n_features_in": 9,
		"trees": [
			[
				{"feature_idx": 0, "threshold": 0, "left_child": 1, "right_child": 2},
				{"feature_idx": -1, "class_label": 1, "is_leaf": true},
				{"feature_idx": -1, "class_label": 0, "is_leaf": true}
			],
			[
				{"feature_idx": 6, "threshold": -0.5, "left_child": 1, "right_child": 2},
				{"feature_idx": -1, "class_label": 1, "is_leaf": true},
				{"feature_idx": -1, "class_label": 0, "is_leaf": true}
			]
		]
	}`))
	require.NoError(t, err)
	return transform, model
}

func TestClassifyHealthyScenario(t *testing.T) {
	transform, model := fittedPair(t)
	p, err := New(transform, model)
	require.NoError(t, err)
	require.NoError(t, p.Check())

	result, err := p.Classify(sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, LabelHealthy, result.Label)
	assert.Equal(t, 1, result.Prediction)
	assert.True(t, result.Scored)
	assert.Equal(t, 1.0, result.Score)
}

func TestClassifyDeterministic(t *testing.T) {
	transform, model := fittedPair(t)
	p, err := New(transform, model)
	require.NoError(t, err)

	profiles := []NutrientProfile{
		sampleProfile(),
		NewNutrientProfile(0, 0, 0, 0, 0, 0, 0, 0, 0),
		NewNutrientProfile(800, 20, 90, 45, 1, 40, 1500, 120, 300),
	}
	for _, profile := range profiles {
		first, err := p.Classify(profile)
		require.NoError(t, err)
		second, err := p.Classify(profile)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Contains(t, []Label{LabelHealthy, LabelUnhealthy}, first.Label)
	}
}

func TestClassifyInvalidInputSkipsStages(t *testing.T) {
	transform := &fakeTransform{width: FeatureCount}
	model := &fakeModel{width: FeatureCount, class: 1}
	observer := &recordingObserver{}
	p, err := New(transform, model, WithObserver(observer))
	require.NoError(t, err)

	profile := sampleProfile()
	neg := -1.0
	profile.Protein = &neg

	_, err = p.Classify(profile)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, transform.calls)
	assert.Zero(t, model.calls)
	assert.Len(t, observer.errs, 1)
}

func TestClassifyDimensionMismatch(t *testing.T) {
	transform := &fakeTransform{width: 8}
	model := &fakeModel{width: FeatureCount, class: 1}
	p, err := New(transform, model)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Check(), ErrDimensionMismatch)
	for i := 0; i < 3; i++ {
		result, err := p.Classify(sampleProfile())
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, Result{}, result)
	}
	assert.Zero(t, transform.calls)
	assert.Zero(t, model.calls)
}

func TestCheckModelWidthMismatch(t *testing.T) {
	transform := &fakeTransform{width: FeatureCount}
	model := &fakeModel{width: 8, class: 1}
	p, err := New(transform, model)
	require.NoError(t, err)

	err = p.Check()
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "model expects 8 features")

	_, err = p.Classify(sampleProfile())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, Unavailable(err))
	assert.Zero(t, transform.calls)
	assert.Zero(t, model.calls)
}

func TestClassifyClampPolicyMatchesZero(t *testing.T) {
	transform := &fakeTransform{width: FeatureCount}
	model := &fakeModel{width: FeatureCount, class: 1, score: 0.7}
	observer := &recordingObserver{}
	p, err := New(transform, model, WithNegativePolicy(NegativeClamp), WithCache(16), WithObserver(observer))
	require.NoError(t, err)
	assert.Equal(t, NegativeClamp, p.Policy())

	negative := sampleProfile()
	sodium := -40.0
	negative.Sodium = &sodium
	zero := sampleProfile()
	none := 0.0
	zero.Sodium = &none

	clamped, err := p.Classify(negative)
	require.NoError(t, err)
	zeroed, err := p.Classify(zero)
	require.NoError(t, err)

	assert.Equal(t, clamped, zeroed)
	assert.Equal(t, 1, transform.calls)
	assert.Equal(t, []bool{false, true}, observer.cached)
	assert.EqualValues(t, 1, p.AssemblerStats().Corrected)
}

func TestClassifyUnavailableArtifacts(t *testing.T) {
	_, model := fittedPair(t)
	p, err := New(nil, model)
	require.NoError(t, err)
	_, err = p.Classify(sampleProfile())
	assert.ErrorIs(t, err, ErrTransformUnavailable)
	assert.True(t, Unavailable(err))

	transform, _ := fittedPair(t)
	p, err = New(transform, nil)
	require.NoError(t, err)
	_, err = p.Classify(sampleProfile())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestClassifyUnexpectedClassIsUnhealthy(t *testing.T) {
	observer := &recordingObserver{}
	p, err := New(&fakeTransform{width: FeatureCount}, &fakeModel{width: FeatureCount, class: 2}, WithObserver(observer))
	require.NoError(t, err)

	result, err := p.Classify(sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, LabelUnhealthy, result.Label)
	assert.Equal(t, 2, result.Prediction)
	assert.False(t, result.Scored)
	assert.Equal(t, []int{2}, observer.unexpected)
}

func TestClassifyModelError(t *testing.T) {
	boom := errors.New("boom")
	p, err := New(&fakeTransform{width: FeatureCount}, &fakeModel{width: FeatureCount, err: boom})
	require.NoError(t, err)
	_, err = p.Classify(sampleProfile())
	assert.ErrorIs(t, err, boom)
	assert.False(t, Unavailable(err))
}

func TestClassifyCache(t *testing.T) {
	transform := &fakeTransform{width: FeatureCount}
	model := &fakeModel{width: FeatureCount, class: 1, score: 0.8}
	observer := &recordingObserver{}
	p, err := New(transform, model, WithCache(16), WithObserver(observer))
	require.NoError(t, err)

	first, err := p.Classify(sampleProfile())
	require.NoError(t, err)
	second, err := p.Classify(sampleProfile())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, transform.calls)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, []bool{false, true}, observer.cached)
}

func TestClassifyConcurrentCallers(t *testing.T) {
	transform, model := fittedPair(t)
	p, err := New(transform, model, WithCache(8))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 32)
	errs := make([]error, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Classify(sampleProfile())
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}
