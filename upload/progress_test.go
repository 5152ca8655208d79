package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkesani1/intake-go/types"
)

func TestPushLatestConflates(t *testing.T) {
	ch := make(chan types.UploadProgress, 1)

	pushLatest(ch, types.NewUploadProgress(100, 1000))
	pushLatest(ch, types.NewUploadProgress(200, 1000))
	pushLatest(ch, types.NewUploadProgress(900, 1000))

	got := <-ch
	assert.Equal(t, int64(900), got.LoadedBytes, "a slow consumer reads the freshest value")

	select {
	case extra := <-ch:
		t.Fatalf("channel should be drained, got %+v", extra)
	default:
	}
}

func TestProgressGateAlwaysPassesEdges(t *testing.T) {
	g := newProgressGate(1) // one update per second, so the middle ones throttle

	assert.True(t, g.allow(types.NewUploadProgress(0, 1000)), "initial update always passes")
	g.allow(types.NewUploadProgress(10, 1000)) // may consume the token
	assert.False(t, g.allow(types.NewUploadProgress(20, 1000)), "intermediate updates are rate limited")
	assert.True(t, g.allow(types.NewUploadProgress(1000, 1000)), "final update always passes")
}

func TestProgressGateDefaultRate(t *testing.T) {
	g := newProgressGate(0)
	assert.NotNil(t, g.lim)
	assert.True(t, g.allow(types.NewUploadProgress(0, 10)))
}
