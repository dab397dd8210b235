package documents

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePut(t *testing.T) {
	putter := &fakePutter{}
	store := NewS3Store(putter, "kyc")

	require.NoError(t, store.Put(context.Background(), "identity-documents/id-1/x-passport.pdf", "application/pdf", []byte("pdf")))
	assert.Equal(t, "kyc", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "identity-documents/id-1/x-passport.pdf", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/pdf", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, []byte("pdf"), putter.body)
}

func TestS3StorePutWrapsErrors(t *testing.T) {
	store := NewS3Store(&fakePutter{err: errors.New("access denied")}, "kyc")
	err := store.Put(context.Background(), "k", "text/plain", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestKeyFor(t *testing.T) {
	key := KeyFor("id-1", "../../etc/passport.pdf")
	assert.True(t, strings.HasPrefix(key, "identity-documents/id-1/"))
	assert.True(t, strings.HasSuffix(key, "-passport.pdf"))
	assert.NotEqual(t, key, KeyFor("id-1", "../../etc/passport.pdf"))

	assert.True(t, strings.HasSuffix(KeyFor("id-1", ""), "-document"))
}

func TestMemoryStoreCopiesBody(t *testing.T) {
	store := NewMemoryStore()
	body := []byte("abc")
	require.NoError(t, store.Put(context.Background(), "k", "text/plain", body))
	body[0] = 'x'

	obj, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), obj.Body)
	assert.Equal(t, 1, store.Len())
}
