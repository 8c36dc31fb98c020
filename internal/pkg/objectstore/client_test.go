package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestFetch(t *testing.T) {
	c := NewClientWithAPI(&fakeS3{objects: map[string][]byte{"certs/f1/key.pem": []byte("pem")}})

	data, err := c.Fetch(context.Background(), "certs", "f1/key.pem")
	require.NoError(t, err)
	assert.Equal(t, []byte("pem"), data)

	_, err = c.Fetch(context.Background(), "certs", "missing")
	assert.ErrorContains(t, err, "s3://certs/missing")
}

func TestFetchRejectsOversizedObject(t *testing.T) {
	c := NewClientWithAPI(&fakeS3{objects: map[string][]byte{"b/k": make([]byte, maxObjectSize+1)}})

	_, err := c.Fetch(context.Background(), "b", "k")
	assert.ErrorContains(t, err, "exceeds")
}

func TestLoadConfigRequiresCredentialsWhenEnabled(t *testing.T) {
	t.Setenv("S3_KEYS_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
}
