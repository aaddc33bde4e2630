package klog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jrmenzel/vimix/internal/klog"
	"github.com/stretchr/testify/require"
)

func TestBootWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutput(&buf)

	klog.Boot("vm", "page allocator ready")

	out := buf.String()
	require.Contains(t, out, `"subsystem":"vm"`)
	require.Contains(t, out, `"message":"page allocator ready"`)
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	require.Error(t, klog.SetLevel("not-a-level"))
	require.NoError(t, klog.SetLevel("debug"))
}

func TestPanicLogsThenPanics(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutput(&buf)

	defer func() {
		r := recover()
		require.Equal(t, "bad circbuf size", r)
		require.True(t, strings.Contains(buf.String(), "bad circbuf size"))
	}()
	klog.Panic("console", "bad circbuf size")
}
