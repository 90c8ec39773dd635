package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praetorian-inc/yarascan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_MetaLastWins(t *testing.T) {
	m := normalize("r", "ns", []string{"t1"}, []rawMeta{
		{identifier: "severity", value: "low"},
		{identifier: "severity", value: "high"},
		{identifier: "score", value: 7},
	}, nil)

	assert.Equal(t, "r", m.Rule)
	assert.Equal(t, "ns", m.Namespace)
	assert.Equal(t, []string{"t1"}, m.Tags)
	assert.Equal(t, "high", m.Meta["severity"])
	assert.Equal(t, int64(7), m.Meta["score"])
	assert.Empty(t, m.Strings)
}

func TestNormalize_StringsFirstOffsetPerIdentifier(t *testing.T) {
	m := normalize("r", "ns", nil, nil, []rawString{
		{identifier: "$a", offset: 10},
		{identifier: "$a", offset: 20},
		{identifier: "$b", offset: 5},
	})

	assert.Equal(t, []types.MatchString{
		{Identifier: "$a", Offset: 10},
		{Identifier: "$b", Offset: 5},
	}, m.Strings)
}

func TestNormalize_StringsCapped(t *testing.T) {
	var strs []rawString
	for i := 0; i < 25; i++ {
		strs = append(strs, rawString{identifier: "$s" + string(rune('a'+i)), offset: uint64(i)})
	}
	m := normalize("r", "ns", nil, nil, strs)
	require.Len(t, m.Strings, types.MaxMatchStrings)
	assert.Equal(t, "$sa", m.Strings[0].Identifier)
}

func TestNormalize_EmptyCollectionsNonNil(t *testing.T) {
	m := normalize("r", "ns", nil, nil, nil)
	assert.NotNil(t, m.Tags)
	assert.NotNil(t, m.Meta)
	assert.NotNil(t, m.Strings)
}

func TestScalar(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{"string", "x", "x"},
		{"bool", true, true},
		{"int64", int64(3), int64(3)},
		{"int", 3, int64(3)},
		{"int32", int32(3), int64(3)},
		{"bytes", []byte("ab"), "ab"},
		{"nil", nil, ""},
		{"float", 1.5, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scalar(tt.input))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classify(errors.New("internal error: 26 (timeout)")), ErrTimeout)
	assert.ErrorIs(t, classify(errors.New("scan timed out")), ErrTimeout)
	assert.ErrorIs(t, classify(errors.New("could not map file")), ErrScan)
	assert.NotErrorIs(t, classify(errors.New("could not map file")), ErrTimeout)
}

func TestEffectiveTimeout(t *testing.T) {
	got, err := effectiveTimeout(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err = effectiveTimeout(ctx, time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, got, time.Second)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = effectiveTimeout(cancelled, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Timeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, Config{}.timeout())
	assert.Equal(t, 3*time.Second, Config{Timeout: 3 * time.Second}.timeout())
}
