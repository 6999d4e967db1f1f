package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalStore(fs, "/data")
	ctx := context.Background()

	_, err := store.Get(ctx, "tenants/t1/accounts/a1/data/baseline_daily.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "tenants/t1/accounts/a1/data/baseline_daily.json", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, "tenants/t1/accounts/a1/data/baseline_daily.json", []byte(`{"v":2}`)))

	got, err := store.Get(ctx, "tenants/t1/accounts/a1/data/baseline_daily.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	exists, err := afero.Exists(fs, "/data/tenants/t1/accounts/a1/data/baseline_daily.json")
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := afero.ReadDir(fs, "/data/tenants/t1/accounts/a1/data")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/data")
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b"} {
		err := store.Put(context.Background(), key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestSnappyStoreCompressesAndReadsLegacy(t *testing.T) {
	mem := NewLocalStore(afero.NewMemMapFs(), "/")
	store := NewSnappyStore(mem)
	ctx := context.Background()

	payload := bytes.Repeat([]byte(`{"ad_id":"a1","spend":"1.00"},`), 200)
	require.NoError(t, store.Put(ctx, "k.json", payload))

	raw, err := mem.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Less(t, len(raw), len(payload))

	got, err := store.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, mem.Put(ctx, "legacy.json", []byte(`{"legacy":true}`)))
	got, err = store.Get(ctx, "legacy.json")
	require.NoError(t, err)
	assert.Equal(t, `{"legacy":true}`, string(got))

	_, err = store.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreMapsNotFound(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewS3Store(fake, "insights", "/prod/")
	ctx := context.Background()

	_, err := store.Get(ctx, "a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "a.json", []byte("1")))
	assert.Contains(t, fake.objects, "insights/prod/a.json")

	got, err := store.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	fake.getErr = &smithy.GenericAPIError{Code: "NotFound"}
	_, err = store.Get(ctx, "a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.getErr = errors.New("connection reset")
	_, err = store.Get(ctx, "a.json")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
