package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	customersdomain "demandinsights/internal/customers/domain"
	featuresdomain "demandinsights/internal/features/domain"
	shareddomain "demandinsights/internal/shared/domain"
	sharedinfra "demandinsights/internal/shared/infrastructure"
	"demandinsights/internal/testhelpers"
)

func newSegmenter(t testing.TB) (*Segmenter, *sharedinfra.ModelRegistry) {
	t.Helper()
	registry, err := sharedinfra.NewModelRegistry(8, zap.NewNop())
	require.NoError(t, err)
	return NewSegmenter(testhelpers.TestConfig(t, nil), registry, zap.NewNop()), registry
}

func TestSegmentCustomers_FiftyCustomerPartition(t *testing.T) {
	s, _ := newSegmenter(t)
	frame := testhelpers.RFMFrame(50, 42)

	res, err := s.SegmentCustomers(context.Background(), frame, 2, 8)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(res.Segments), 2)
	assert.LessOrEqual(t, len(res.Segments), 8)
	assert.Equal(t, res.K, len(res.Segments))
	assert.Equal(t, 50, res.TotalCustomers)

	total := 0
	for i, seg := range res.Segments {
		assert.Equal(t, i, seg.ID)
		assert.GreaterOrEqual(t, seg.MemberCount, 1)
		assert.Len(t, seg.Centroid, 3)
		total += seg.MemberCount
	}
	assert.Equal(t, 50, total)

	require.Len(t, res.Assignments, 50)
	counts := make(map[int]int)
	for _, c := range frame.Customers {
		id, ok := res.Assignments[c.CustomerID]
		require.True(t, ok, "customer %s not assigned", c.CustomerID)
		counts[id]++
	}
	for _, seg := range res.Segments {
		assert.Equal(t, seg.MemberCount, counts[seg.ID])
	}

	assert.Equal(t, "Champions", res.Segments[0].Name)
	assert.Equal(t, "Lost", res.Segments[len(res.Segments)-1].Name)
	assert.Contains(t, []string{SelectionElbow, SelectionSilhouette}, res.SelectionMethod)
}

func TestSegmentCustomers_CentroidsInOriginalUnits(t *testing.T) {
	s, _ := newSegmenter(t)

	res, err := s.SegmentCustomers(context.Background(), testhelpers.RFMFrame(80, 11), 3, 3)
	require.NoError(t, err)

	for _, seg := range res.Segments {
		require.Len(t, seg.Centroid, len(featuresdomain.RFMFeatures))
		assert.InDelta(t, seg.AvgRecency, seg.Centroid[0], 1e-6, seg.Name)
		assert.InDelta(t, seg.AvgFrequency, seg.Centroid[1], 1e-6, seg.Name)
		assert.InDelta(t, seg.AvgMonetary, seg.Centroid[2], 1e-6, seg.Name)
	}
}

func TestSegmentCustomers_Deterministic(t *testing.T) {
	frame := testhelpers.RFMFrame(80, 9)

	s1, _ := newSegmenter(t)
	a, err := s1.SegmentCustomers(context.Background(), frame, 2, 6)
	require.NoError(t, err)

	s2, _ := newSegmenter(t)
	b, err := s2.SegmentCustomers(context.Background(), frame, 2, 6)
	require.NoError(t, err)

	assert.Equal(t, a.Assignments, b.Assignments)
	for i := range a.Segments {
		assert.Equal(t, a.Segments[i].Name, b.Segments[i].Name)
	}
}

func TestSegmentCustomers_ReusesRegistryArtifact(t *testing.T) {
	s, registry := newSegmenter(t)
	frame := testhelpers.RFMFrame(40, 1)

	_, err := s.SegmentCustomers(context.Background(), frame, 2, 5)
	require.NoError(t, err)
	_, err = s.SegmentCustomers(context.Background(), frame, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	current, ok := registry.Current(ModelKind)
	require.True(t, ok)
	assert.Greater(t, current.Metric("k"), 1.0)
}

func TestSegmentCustomers_ExcludesInactive(t *testing.T) {
	s, _ := newSegmenter(t)
	frame := testhelpers.RFMFrame(30, 5)
	frame.Customers = append(frame.Customers, customersdomain.CustomerRecord{CustomerID: "Z999", RecencyDays: 500, Inactive: true})

	res, err := s.SegmentCustomers(context.Background(), frame, 2, 4)
	require.NoError(t, err)
	_, assigned := res.Assignments["Z999"]
	assert.False(t, assigned)
	assert.Equal(t, 30, res.TotalCustomers)
}

func TestSegmentCustomers_Errors(t *testing.T) {
	s, _ := newSegmenter(t)
	frame := testhelpers.RFMFrame(3, 1)

	_, err := s.SegmentCustomers(context.Background(), frame, 1, 4)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)

	_, err = s.SegmentCustomers(context.Background(), frame, 5, 4)
	assert.ErrorIs(t, err, shareddomain.ErrValidation)

	_, err = s.SegmentCustomers(context.Background(), frame, 4, 6)
	assert.ErrorIs(t, err, shareddomain.ErrDataInsufficient)

	_, err = s.SegmentCustomers(context.Background(), &featuresdomain.CustomerFrame{}, 2, 4)
	assert.ErrorIs(t, err, shareddomain.ErrDataInsufficient)
}

func TestSegmentCustomers_CancelledContext(t *testing.T) {
	s, _ := newSegmenter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SegmentCustomers(ctx, testhelpers.RFMFrame(40, 2), 2, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectK(t *testing.T) {
	k, method := SelectK([]int{2, 3, 4, 5, 6}, []float64{100, 40, 30, 25, 22}, []float64{0.5, 0.4, 0.3, 0.3, 0.2}, 0.10)
	assert.Equal(t, 3, k)
	assert.Equal(t, SelectionElbow, method)

	k, method = SelectK([]int{2, 3, 4, 5}, []float64{100, 90, 80, 70}, []float64{0.3, 0.5, 0.5, 0.2}, 0.10)
	assert.Equal(t, 3, k)
	assert.Equal(t, SelectionSilhouette, method)

	k, method = SelectK([]int{2, 3}, []float64{100, 10}, []float64{0.6, 0.4}, 0.10)
	assert.Equal(t, 2, k)
	assert.Equal(t, SelectionSilhouette, method)

	k, method = SelectK([]int{4}, []float64{1}, []float64{0}, 0.10)
	assert.Equal(t, 4, k)
	assert.Equal(t, SelectionSingle, method)
}

func TestLabelNames(t *testing.T) {
	assert.Equal(t, customersdomain.SegmentTaxonomy, labelNames(6))
	assert.Equal(t, []string{"Champions", "Lost"}, labelNames(2))
	assert.Equal(t, []string{
		"Champions", "Loyal", "Loyal II", "Potential Loyalist",
		"At Risk", "Hibernating", "Hibernating II", "Lost",
	}, labelNames(8))
}

// ========================================
// Benchmarks
// ========================================

// BenchmarkSegmentCustomers_500 mesure un balayage k=2..8 sans registre chaud
func BenchmarkSegmentCustomers_500(b *testing.B) {
	frame := testhelpers.RFMFrame(500, 1)
	cfg := testhelpers.TestConfig(b, nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		registry, _ := sharedinfra.NewModelRegistry(1, zap.NewNop())
		s := NewSegmenter(cfg, registry, zap.NewNop())
		_, _ = s.SegmentCustomers(context.Background(), frame, 2, 8)
	}
}
