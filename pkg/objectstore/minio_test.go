package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURLStripsQueryParams(t *testing.T) {
	got, err := CanonicalURL("https://minio.local:9000/clips/videos/abc.mp4?X-Amz-Signature=deadbeef&X-Amz-Expires=3600")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local:9000/clips/videos/abc.mp4", got)
}

func TestCanonicalURLPassesCleanURLThrough(t *testing.T) {
	got, err := CanonicalURL("http://minio.local:9000/clips/abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://minio.local:9000/clips/abc.mp4", got)
}

func TestCanonicalURLDropsFragment(t *testing.T) {
	got, err := CanonicalURL("http://minio.local/clips/abc.mp4#t=10")
	require.NoError(t, err)
	assert.Equal(t, "http://minio.local/clips/abc.mp4", got)
}
