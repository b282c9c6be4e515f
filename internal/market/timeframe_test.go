package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("1m")
	require.NoError(t, err)
	assert.Equal(t, "1m", tf.Key)
	assert.Equal(t, time.Minute, tf.Duration)

	tf, err = ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)

	_, err = ParseTimeframe("13m")
	assert.Error(t, err)
	_, err = ParseTimeframe("")
	assert.Error(t, err)
}

func TestAlignRange(t *testing.T) {
	tf, _ := ParseTimeframe("1m")
	step := tf.Millis()

	start, end := tf.AlignRange(90_001, 240_001)
	assert.Equal(t, int64(60_000), start)
	assert.Equal(t, int64(240_000), end)
	assert.Zero(t, start%step)
	assert.Zero(t, end%step)

	// Already aligned input stays put.
	start, end = tf.AlignRange(60_000, 300_000)
	assert.Equal(t, int64(60_000), start)
	assert.Equal(t, int64(300_000), end)
}

func TestExpectedBars(t *testing.T) {
	tf, _ := ParseTimeframe("1m")
	assert.Equal(t, int64(5), tf.ExpectedBars(0, 5*60_000))
	assert.Equal(t, int64(1), tf.ExpectedBars(0, 1))
	assert.Equal(t, int64(0), tf.ExpectedBars(60_000, 60_000))
}

func TestCandleValid(t *testing.T) {
	good := Candle{OpenTime: 60_000, CloseTime: 120_000, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}
	assert.True(t, good.Valid())

	bad := good
	bad.High = 8 // below open
	assert.False(t, bad.Valid())

	bad = good
	bad.Volume = -1
	assert.False(t, bad.Valid())
}
