package imageapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDimensions_Square(t *testing.T) {
	w, h := CalculateDimensions("1:1", 1024*1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, h)
}

func TestCalculateDimensions_Widescreen(t *testing.T) {
	w, h := CalculateDimensions("16:9", 1024*1024)
	assert.Equal(t, 0, w%8)
	assert.Equal(t, 0, h%8)
	assert.InDelta(t, 16.0/9.0, float64(w)/float64(h), 0.05)
}

func TestCalculateDimensions_Fallback(t *testing.T) {
	w, h := CalculateDimensions("garbage", 1024*1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, h)
}

func TestExtractUUID_Probes(t *testing.T) {
	uuid, ok := extractUUID(map[string]any{"task_uuid": "abc"})
	assert.True(t, ok)
	assert.Equal(t, "abc", uuid)

	uuid, ok = extractUUID(map[string]any{"data": map[string]any{"id": "nested"}})
	assert.True(t, ok)
	assert.Equal(t, "nested", uuid)

	_, ok = extractUUID(map[string]any{"nothing": "here"})
	assert.False(t, ok)
}

func TestExtractURL_Probes(t *testing.T) {
	url, ok := extractURL(map[string]any{"image_url": "http://x"})
	assert.True(t, ok)
	assert.Equal(t, "http://x", url)

	url, ok = extractURL(map[string]any{"images": []any{map[string]any{"url": "http://y"}}})
	assert.True(t, ok)
	assert.Equal(t, "http://y", url)

	url, ok = extractURL(map[string]any{"images": []any{"http://z"}})
	assert.True(t, ok)
	assert.Equal(t, "http://z", url)
}
