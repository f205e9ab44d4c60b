package touched

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AddDeduplicatesAndSorts(t *testing.T) {
	s := New()
	s.Add("/b/file.ts")
	s.Add("/a/../b/file.ts")
	s.Add("/a/file.ts")
	s.Add("")

	assert.Equal(t, []string{"/a/file.ts", "/b/file.ts"}, s.Sorted())
	assert.Equal(t, 2, s.Len())
}

func TestSet_RelativePathsBecomeAbsolute(t *testing.T) {
	s := New()
	s.Add("docs/plan.md")

	paths := s.Sorted()
	require.Len(t, paths, 1)
	assert.True(t, filepath.IsAbs(paths[0]))
}

func TestSet_Reset(t *testing.T) {
	s := New()
	s.Add("/x")
	s.Reset()
	assert.Empty(t, s.Sorted())
}

func TestSet_ConcurrentAdd(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(fmt.Sprintf("/f/%d", i%10))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func TestRecord(t *testing.T) {
	// No set attached: silently ignored.
	Record(context.Background(), "/nowhere")

	s := New()
	ctx := WithSet(context.Background(), s)
	Record(ctx, "/src/App.vue")

	assert.Same(t, s, FromContext(ctx))
	assert.Equal(t, []string{"/src/App.vue"}, s.Sorted())
}
