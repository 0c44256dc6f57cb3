package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr error
	}{
		{name: "zero size", size: 0, overlap: 0, wantErr: ErrChunkSize},
		{name: "negative size", size: -10, overlap: 0, wantErr: ErrChunkSize},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: ErrOverlap},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: ErrOverlap},
		{name: "overlap exceeds size", size: 100, overlap: 150, wantErr: ErrOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// A 1000-rune text at size 500 / overlap 100 covers three windows of
// lengths 500, 500 and 200, every window sharing its first 100 runes
// with the previous window's tail.
func TestSplitOverlapWindows(t *testing.T) {
	c, err := New(500, 100)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 100) // 1000 runes
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 500, len([]rune(chunks[0])))
	assert.Equal(t, 500, len([]rune(chunks[1])))
	assert.Equal(t, 200, len([]rune(chunks[2])))

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-100:]), string(cur[:100]),
			"chunk %d must start with the previous chunk's last 100 runes", i)
	}
}

func TestSplitAdvancesBySizeMinusOverlap(t *testing.T) {
	c, err := New(500, 100)
	require.NoError(t, err)

	text := strings.Repeat("x", 1200)
	chunks := c.Split(text)

	// Starts at 0, 400, 800; the final window is clipped at the text end.
	require.Len(t, chunks, 3)
	assert.Equal(t, 500, len(chunks[0]))
	assert.Equal(t, 500, len(chunks[1]))
	assert.Equal(t, 400, len(chunks[2]))
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("campus policy text ", 40)
	first := c.Split(text)
	second := c.Split(text)
	assert.Equal(t, first, second)
}

func TestSplitNoChunkExceedsSize(t *testing.T) {
	c, err := New(64, 16)
	require.NoError(t, err)

	for _, text := range []string{
		"short",
		strings.Repeat("a", 64),
		strings.Repeat("b", 65),
		strings.Repeat("tuition and fees ", 200),
	} {
		for i, chunk := range c.Split(text) {
			assert.LessOrEqual(t, len([]rune(chunk)), 64, "chunk %d of %q", i, text[:5])
		}
	}
}

func TestSplitShortAndEmptyInput(t *testing.T) {
	c, err := New(500, 100)
	require.NoError(t, err)

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))

	chunks := c.Split("fee waiver form")
	require.Len(t, chunks, 1)
	assert.Equal(t, "fee waiver form", chunks[0])
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Split("日本語のテキスト") // 8 runes, 24 bytes
	require.NotEmpty(t, chunks)
	assert.Equal(t, "日本語の", chunks[0])
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 4)
	}
}

func TestSplitZeroOverlap(t *testing.T) {
	c, err := New(3, 0)
	require.NoError(t, err)

	chunks := c.Split("abcdefgh")
	assert.Equal(t, []string{"abc", "def", "gh"}, chunks)
}
