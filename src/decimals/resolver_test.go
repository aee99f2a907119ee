package decimals

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func counting(d int32, err error, calls *int) Source {
	return SourceFunc(func(context.Context, string) (int32, error) {
		*calls++
		return d, err
	})
}

func TestResolverUsesFirstAnsweringSourceAndCaches(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	var apiCalls, chainCalls int
	r := NewResolver(logrus.NewEntry(logger), 9,
		counting(0, errors.New("api down"), &apiCalls),
		counting(6, nil, &chainCalls),
	)

	d, approx := r.Resolve(context.Background(), "mintA")
	assert.Equal(t, int32(6), d)
	assert.False(t, approx)

	d, _ = r.Resolve(context.Background(), "mintA")
	assert.Equal(t, int32(6), d)
	assert.Equal(t, 1, apiCalls)
	assert.Equal(t, 1, chainCalls)
}

func TestResolverFallbackIsNotCached(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	var calls int
	fail := true
	src := SourceFunc(func(context.Context, string) (int32, error) {
		calls++
		if fail {
			return 0, errors.New("unreachable")
		}
		return 5, nil
	})
	r := NewResolver(logrus.NewEntry(logger), 9, src)

	d, approx := r.Resolve(context.Background(), "mintB")
	assert.Equal(t, int32(9), d)
	assert.True(t, approx)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	fail = false
	d, approx = r.Resolve(context.Background(), "mintB")
	assert.Equal(t, int32(5), d)
	assert.False(t, approx)
	assert.Equal(t, 2, calls)
}

func TestResolverRejectsOutOfRange(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	var calls int
	r := NewResolver(logrus.NewEntry(logger), 9, counting(42, nil, &calls))

	d, approx := r.Resolve(context.Background(), "mintC")
	assert.Equal(t, int32(9), d)
	assert.True(t, approx)
}
