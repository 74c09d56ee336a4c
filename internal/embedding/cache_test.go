package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragdocs/internal/cache"
)

type fakeProvider struct {
	calls [][]string
	err   error
	short bool
}

// vector derived from text length so scatter mistakes are visible
func vecFor(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (f *fakeProvider) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, vecFor(t))
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func newTestCache(t *testing.T, p Provider) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv, err := cache.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return NewCache(kv, p, 2, 0, nil), mr
}

func TestKeyIsNamespacedHash(t *testing.T) {
	k := Key("hello")
	assert.Equal(t, "emb:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", k)
}

func TestEmbedManyCachesMisses(t *testing.T) {
	p := &fakeProvider{}
	c, mr := newTestCache(t, p)
	ctx := context.Background()

	vecs, err := c.EmbedMany(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{vecFor("a"), vecFor("bb")}, vecs)
	require.Len(t, p.calls, 1)

	assert.True(t, mr.Exists(Key("a")))
	assert.Equal(t, DefaultTTL, mr.TTL(Key("bb")))

	// all cached: no provider call
	vecs, err = c.EmbedMany(ctx, []string{"bb", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{vecFor("bb"), vecFor("a")}, vecs)
	assert.Len(t, p.calls, 1)
}

func TestEmbedManyInterleavedHitsKeepOrder(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newTestCache(t, p)
	ctx := context.Background()

	_, err := c.EmbedMany(ctx, []string{"hit-one", "hit-three-long"})
	require.NoError(t, err)

	input := []string{"x", "hit-one", "yyyy", "hit-three-long", "zz"}
	vecs, err := c.EmbedMany(ctx, input)
	require.NoError(t, err)
	require.Len(t, vecs, len(input))
	for i, text := range input {
		assert.Equal(t, vecFor(text), vecs[i], "position %d", i)
	}

	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"x", "yyyy", "zz"}, p.calls[1], "only misses, in relative order")
}

func TestEmbedOne(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newTestCache(t, p)

	v, err := c.EmbedOne(context.Background(), "question?")
	require.NoError(t, err)
	assert.Equal(t, vecFor("question?"), v)
}

func TestEmbedManyProviderErrors(t *testing.T) {
	boom := errors.New("provider down")
	c, mr := newTestCache(t, &fakeProvider{err: boom})
	_, err := c.EmbedMany(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(Key("a")))

	c, _ = newTestCache(t, &fakeProvider{short: true})
	_, err = c.EmbedMany(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	p := &fakeProvider{}
	c, mr := newTestCache(t, p)
	require.NoError(t, mr.Set(Key("a"), "not json"))

	v, err := c.EmbedOne(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, vecFor("a"), v)
	assert.Len(t, p.calls, 1)
}

func TestWrongDimensionEntryIsMiss(t *testing.T) {
	p := &fakeProvider{}
	c, mr := newTestCache(t, p)
	// вектор от прежней модели другой размерности
	require.NoError(t, mr.Set(Key("hello"), "[0.1,0.2,0.3,0.4]"))

	v, err := c.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, vecFor("hello"), v)
	assert.Len(t, p.calls, 1)

	// запись перезаписана вектором нужной размерности
	raw, err := mr.Get(Key("hello"))
	require.NoError(t, err)
	assert.Equal(t, "[5,1]", raw)
}

func TestCustomTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := cache.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	c := NewCache(kv, &fakeProvider{}, 2, time.Minute, nil)

	_, err = c.EmbedOne(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(Key("t")))
}
