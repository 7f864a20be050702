package chunk

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regexChunker(size, overlap, minSize int) *Chunker {
	return New(Options{Size: size, Overlap: overlap, MinSize: minSize, RespectSentence: true, Mode: ModeRegex})
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"best", "statistical", "regex", "fixed"} {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err := ParseMode("semantic")
	assert.Error(t, err)
}

func TestLadderResolvedFromMode(t *testing.T) {
	cases := []struct {
		mode Mode
		want []string
	}{
		{ModeBest, []string{"structural", "statistical", "regex", "fixed"}},
		{ModeStatistical, []string{"statistical", "regex", "fixed"}},
		{ModeRegex, []string{"regex", "fixed"}},
		{ModeFixed, []string{"fixed"}},
	}
	for _, tc := range cases {
		c := New(Options{Size: 100, RespectSentence: true, Mode: tc.mode})
		assert.Equal(t, tc.want, c.Ladder(), tc.mode.String())
	}
	assert.Equal(t, []string{"fixed"}, New(Options{Size: 100, RespectSentence: false}).Ladder())
}

func TestAbbreviationScenario(t *testing.T) {
	c := regexChunker(20, 5, 5)
	got := c.Split("Dr. Smith works at OpenAI. He said hello. The end.")
	assert.Equal(t, []string{
		"Dr. Smith works at OpenAI.",
		"enAI. He said hello.",
		"ello. The end.",
	}, got)
	for _, ch := range got {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(ch), 5)
	}
	assert.False(t, strings.HasSuffix(got[0], "Dr."))
}

func TestShortTextYieldsNothing(t *testing.T) {
	c := regexChunker(100, 10, 50)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n "))
	assert.Empty(t, c.Split("Too short to keep."))
	assert.Empty(t, c.Chunk("doc", "Too short."))
}

func TestEveryChunkMeetsMinimum(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma delta. Tiny. Epsilon zeta eta theta iota kappa. ", 30)
	for _, mode := range []Mode{ModeStatistical, ModeRegex, ModeFixed} {
		c := New(Options{Size: 120, Overlap: 20, MinSize: 40, RespectSentence: true, Mode: mode, UseStatistical: true})
		chunks := c.Split(text)
		require.NotEmpty(t, chunks, mode.String())
		for _, ch := range chunks {
			assert.GreaterOrEqual(t, utf8.RuneCountInString(ch), 40, mode.String())
		}
	}
}

func TestOverlapReconstructsSentences(t *testing.T) {
	sentences := []string{
		"The pump must be primed before use.",
		"Open the bleed valve slowly.",
		"Wait until water flows steadily.",
		"Close the valve and start the motor.",
		"Check the pressure gauge after a minute.",
	}
	const overlap = 8
	c := regexChunker(70, overlap, 1)
	chunks := c.Split(strings.Join(sentences, " "))
	require.Greater(t, len(chunks), 1)

	parts := []string{chunks[0]}
	for i := 1; i < len(chunks); i++ {
		prefix := lastRunes(chunks[i-1], overlap) + " "
		require.True(t, strings.HasPrefix(chunks[i], prefix), "chunk %d should start with overlap %q", i, prefix)
		parts = append(parts, strings.TrimPrefix(chunks[i], prefix))
	}
	assert.Equal(t, strings.Join(sentences, " "), strings.Join(parts, " "))
}

func TestOversizedSentenceIsKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	c := regexChunker(50, 0, 5)
	chunks := c.Split("Short one here. " + long + " Another short one.")
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.TrimSpace(long), chunks[1])
}

func TestOverlapNotSmallerThanSizeIsClamped(t *testing.T) {
	c := regexChunker(20, 30, 1)
	chunks := c.Split("Aaaa bbbb cc. Dddd eeee ff. Gggg hhhh ii. Jjjj kkkk ll.")
	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 24, "chunk %d: %q", i, ch)
		if i > 0 {
			assert.True(t, strings.HasPrefix(ch, lastRunes(chunks[i-1], 10)+" "), "chunk %d", i)
		}
	}

	assert.Equal(t, 0, sentenceOverlap(20, -3))
	assert.Equal(t, 5, sentenceOverlap(20, 5))
	assert.Equal(t, 10, sentenceOverlap(20, 20))
}

func TestZeroOverlapSeedsOnlySentence(t *testing.T) {
	got := assemble([]string{"aaaa.", "bbbb.", "cccc."}, 9, 0, 1)
	assert.Equal(t, []string{"aaaa.", "bbbb.", "cccc."}, got)
}

func TestRegexSplit(t *testing.T) {
	got, err := regexSplit("Prof. J. Doe met Mrs. Roe in the U.S.A. today! Was it fun? Yes.  第一句。第二句！")
	require.NoError(t, err)
	trimmed := make([]string, len(got))
	for i, s := range got {
		trimmed[i] = strings.TrimSpace(s)
	}
	assert.Equal(t, []string{
		"Prof. J. Doe met Mrs. Roe in the U.S.A. today!",
		"Was it fun?",
		"Yes.",
		"第一句。",
		"第二句！",
	}, trimmed)
}

func TestWindows(t *testing.T) {
	assert.Equal(t, []string{"abcdef", "efghij", "ijkl"}, windows("abcdefghijkl", 6, 2, 1))
	// Windows shorter than the minimum are dropped.
	assert.Equal(t, []string{"abcdef", "efghij"}, windows("abcdefghijkl", 6, 2, 5))
	// A degenerate step stops after one window instead of looping.
	assert.Equal(t, []string{"abc"}, windows("abcdefgh", 3, 3, 1))
	assert.Equal(t, []string{"abc"}, windows("abcdefgh", 3, 5, 1))
	// Counted in characters, not bytes.
	assert.Equal(t, []string{"日本語", "語です"}, windows("日本語です", 3, 1, 1))
}

func TestFixedModeIgnoresSentences(t *testing.T) {
	c := New(Options{Size: 10, Overlap: 0, MinSize: 1, RespectSentence: false})
	assert.Equal(t, []string{"One. Two.", "Three."}, c.Split("One. Two. Three."))
}

func TestChunkNumbering(t *testing.T) {
	c := regexChunker(30, 0, 5)
	chunks := c.Chunk("manual", "First sentence is here. Second sentence is here. Third one.")
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 3, ch.Total)
		assert.Equal(t, "manual_"+string(rune('0'+i)), ch.ID)
	}
}

type stubStrategy struct {
	name      string
	available bool
	out       []string
	err       error
	panicWith any
	calls     int
}

func (s *stubStrategy) Name() string    { return s.name }
func (s *stubStrategy) Available() bool { return s.available }
func (s *stubStrategy) Chunk(string) ([]string, error) {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.out, s.err
}

func TestLadderFallsThrough(t *testing.T) {
	off := &stubStrategy{name: "off"}
	broken := &stubStrategy{name: "broken", available: true, err: errors.New("model missing")}
	crashing := &stubStrategy{name: "crashing", available: true, panicWith: "index out of range"}
	good := &stubStrategy{name: "good", available: true, out: []string{"ok chunk"}}

	c := &Chunker{opts: Options{MinSize: 1}, log: New(Options{}).log}
	c.ladder = []Strategy{off, broken, crashing, good}

	assert.Equal(t, []string{"ok chunk"}, c.Split("some text"))
	assert.Zero(t, off.calls)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, crashing.calls)
	assert.Equal(t, 1, good.calls)
}

func TestStructuralTierUnavailableFallsBack(t *testing.T) {
	c := New(Options{Size: 20, Overlap: 0, MinSize: 5, RespectSentence: true, Mode: ModeBest})
	// Both analyzers disabled: regex tier produces the chunks.
	assert.Equal(t, []string{"Dr. Who is here.", "Next sentence."}, c.Split("Dr. Who is here. Next sentence."))
}

func TestStructuralTier(t *testing.T) {
	c := New(Options{Size: 60, Overlap: 0, MinSize: 5, RespectSentence: true, Mode: ModeBest, UseStructural: true})
	chunks := c.Split("The valve opens at dawn. The pump starts later. Everything runs until dusk.")
	require.NotEmpty(t, chunks)
	joined := strings.Join(chunks, " ")
	assert.Contains(t, joined, "The valve opens at dawn.")
	assert.Contains(t, joined, "Everything runs until dusk.")

	cjk := New(Options{Size: 10, Overlap: 0, MinSize: 2, RespectSentence: true, Mode: ModeBest, UseStructural: true})
	out := cjk.Split("今天天气很好。我们去公园散步。然后回家吃饭。")
	assert.Equal(t, []string{"今天天气很好。", "我们去公园散步。", "然后回家吃饭。"}, out)
}

func TestIsCJK(t *testing.T) {
	assert.True(t, IsCJK("这是一个中文句子。", 0.05))
	assert.False(t, IsCJK("An English sentence.", 0.05))
	assert.False(t, IsCJK("", 0.05))
	assert.True(t, IsCJK("Mostly English with 中文 inside", 0.05))
}
