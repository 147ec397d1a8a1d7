package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/formcoach/internal/pose"
)

func newTestSocketSource(t *testing.T) *SocketSource {
	t.Helper()
	// unix socket paths are length limited, t.TempDir() can be too deep
	dir, err := os.MkdirTemp("", "formcoach-unix")
	require.NoError(t, err)
	t.Cleanup(func() {
		if rErr := os.RemoveAll(dir); rErr != nil {
			t.Error(rErr)
		}
	})

	src, err := NewSocketSource(dir, fmt.Sprintf("%d.sock", os.Getpid()))
	require.NoError(t, err)
	return src
}

func TestSocketSource_ReceivesFrames(t *testing.T) {
	src := newTestSocketSource(t)

	conn, err := net.DialTimeout("unix", src.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = conn.Write([]byte(
		`{"index":1,"joints":{"left_elbow":{"x":1,"y":2}}}` + "\n" +
			"garbage\n" +
			`{"index":2,"joints":{}}` + "\n",
	))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Index)
	assert.Equal(t, pose.Point{X: 1, Y: 2}, f.Joints[pose.LeftElbow].Point)

	// the malformed line is skipped
	f, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Index)

	require.NoError(t, src.Close())
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close(), "second close")
}

func TestSocketSource_CloseUnblocksReaders(t *testing.T) {
	src := newTestSocketSource(t)

	conn, err := net.DialTimeout("unix", src.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// nobody consumes these, the reader blocks on hand over
	_, err = conn.Write([]byte(`{"index":1,"joints":{}}` + "\n" + `{"index":2,"joints":{}}` + "\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, src.Close())
}

func TestSocketSource_NextHonorsContext(t *testing.T) {
	src := newTestSocketSource(t)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
