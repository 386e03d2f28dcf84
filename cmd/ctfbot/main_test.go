package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot/contentstore"
)

func TestListStoredWriteups(t *testing.T) {
	dir, err := os.MkdirTemp("", "tmpTest")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ldb, err := contentstore.NewLevelDB(writeupsDB, dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ldb.EnsureFolder(ctx, "writeups/2025/htp"))
	require.NoError(t, ldb.PutFile(ctx, "writeups/2025/htp/pwn-heap.md", "heap", ""))
	require.NoError(t, ldb.PutFile(ctx, "writeups/2025/htp/crypto-babyrsa.md", "rsa", ""))
	require.NoError(t, ldb.Close())

	var out bytes.Buffer
	require.NoError(t, listStoredWriteups(&out, dir))

	assert.Equal(t, "2 writeups stored under ["+dir+"]\n"+
		"  writeups/2025/htp/crypto-babyrsa.md\n"+
		"  writeups/2025/htp/pwn-heap.md\n", out.String())
}

func TestListStoredWriteupsOnEmptyStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "tmpTest")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	var out bytes.Buffer
	require.NoError(t, listStoredWriteups(&out, dir))

	assert.Equal(t, "0 writeups stored under ["+dir+"]\n", out.String())
}
