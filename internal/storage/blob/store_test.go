package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

func TestNewDisabled(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.StorageConfig{Enabled: true, Backend: "local", Local: config.StorageLocalConfig{Directory: t.TempDir()}})
	require.NoError(t, err)

	key := "generations/ngo/abc/0.png"
	info, err := s.Put(ctx, key, strings.NewReader("png-bytes"), PutOptions{ContentType: "image/png", Metadata: map[string]string{"org_type": "ngo"}})
	require.NoError(t, err)
	require.EqualValues(t, 9, info.Size)

	rc, got, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", got.ContentType)
	require.Equal(t, "ngo", got.Metadata["org_type"])

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsBadKeys(t *testing.T) {
	s, err := newLocalStore(config.StorageLocalConfig{Directory: t.TempDir()})
	require.NoError(t, err)
	for _, key := range []string{"", ".", "../escape.png", "/etc/passwd", "a/b.png.meta"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		require.Error(t, err, key)
	}
}

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(data)
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(f.types[aws.ToString(in.Key)]),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	s := &s3Store{client: fake, bucket: "studio", prefix: "images", publicURL: "https://cdn.example.org"}

	info, err := s.Put(ctx, "/generations/ngo/1/0.png", strings.NewReader("img"), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.org/images/generations/ngo/1/0.png", info.URL)
	require.Contains(t, fake.objects, "images/generations/ngo/1/0.png")

	rc, got, err := s.Get(ctx, "generations/ngo/1/0.png")
	require.NoError(t, err)
	defer rc.Close()
	require.EqualValues(t, 3, got.Size)
	require.Equal(t, "image/png", got.ContentType)

	require.NoError(t, s.Delete(ctx, "generations/ngo/1/0.png"))
	_, _, err = s.Get(ctx, "generations/ngo/1/0.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := newS3Store(config.StorageS3Config{}, aws.Config{})
	require.Error(t, err)

	s, err := newS3Store(config.StorageS3Config{Bucket: "b", Endpoint: "http://localhost:9000", PublicBaseURL: "http://localhost:9000/b/"}, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000/b", s.publicURL)
	require.Empty(t, (&s3Store{}).url("k"))
}

func TestLocalStoreWithoutSidecar(t *testing.T) {
	dir := t.TempDir()
	s, err := newLocalStore(config.StorageLocalConfig{Directory: dir})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Put(ctx, "generations/ngo/x/0.png", strings.NewReader("abcd"), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "generations", "ngo", "x", "0.png.meta")))

	rc, info, err := s.Get(ctx, "generations/ngo/x/0.png")
	require.NoError(t, err)
	defer rc.Close()
	require.EqualValues(t, 4, info.Size)
	require.Equal(t, "image/png", info.ContentType)
}
