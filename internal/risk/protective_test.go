package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_executor/internal/models"
)

func TestProtectiveLevels(t *testing.T) {
	sl, err := StopLossPrice(d("100"), 2, models.PositionLong)
	require.NoError(t, err)
	assert.True(t, sl.Equal(d("98")), "got %s", sl)

	tp, err := TakeProfitPrice(d("100"), 4, models.PositionLong)
	require.NoError(t, err)
	assert.True(t, tp.Equal(d("104")), "got %s", tp)

	sl, err = StopLossPrice(d("100"), 2, models.PositionShort)
	require.NoError(t, err)
	assert.True(t, sl.Equal(d("102")), "got %s", sl)

	tp, err = TakeProfitPrice(d("100"), 4, models.PositionShort)
	require.NoError(t, err)
	assert.True(t, tp.Equal(d("96")), "got %s", tp)
}

func TestProtectiveLevels_StrictlyAcrossEntry(t *testing.T) {
	entries := []string{"0.00001234", "1", "42.5", "63250.1"}
	pcts := []float64{0.01, 0.5, 1, 2.5, 10, 50, 99}
	for _, e := range entries {
		entry := d(e)
		for _, pct := range pcts {
			sl, err := StopLossPrice(entry, pct, models.PositionLong)
			require.NoError(t, err)
			assert.True(t, sl.LessThan(entry) && sl.IsPositive(), "long sl %s entry %s", sl, entry)

			tp, err := TakeProfitPrice(entry, pct, models.PositionLong)
			require.NoError(t, err)
			assert.True(t, tp.GreaterThan(entry), "long tp %s entry %s", tp, entry)

			sl, err = StopLossPrice(entry, pct, models.PositionShort)
			require.NoError(t, err)
			assert.True(t, sl.GreaterThan(entry), "short sl %s entry %s", sl, entry)

			tp, err = TakeProfitPrice(entry, pct, models.PositionShort)
			require.NoError(t, err)
			assert.True(t, tp.LessThan(entry) && tp.IsPositive(), "short tp %s entry %s", tp, entry)
		}
	}
}

func TestProtectiveLevels_Rejects(t *testing.T) {
	_, err := StopLossPrice(d("100"), 0, models.PositionLong)
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = StopLossPrice(d("0"), 2, models.PositionLong)
	assert.Error(t, err)

	_, err = StopLossPrice(d("100"), 100, models.PositionLong)
	assert.Error(t, err)

	_, err = TakeProfitPrice(d("100"), 100, models.PositionShort)
	assert.Error(t, err)

	_, err = TakeProfitPrice(d("100"), 2, models.PositionFlat)
	assert.Error(t, err)

	// 100%+ для стопа шорта допустим
	sl, err := StopLossPrice(d("100"), 150, models.PositionShort)
	require.NoError(t, err)
	assert.True(t, sl.Equal(d("250")))
}
