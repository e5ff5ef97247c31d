package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name   string    `msgpack:"name"`
	Values []float32 `msgpack:"values"`
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "obj"+Ext)
	h := Header{Kind: "payload", Version: 2}
	in := payload{Name: "z/500", Values: []float32{1, 2.5, -3}}
	require.NoError(t, Write(path, h, in))

	var out payload
	require.NoError(t, Read(path, h, &out))
	assert.Equal(t, in, out)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadRejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj"+Ext)
	require.NoError(t, Write(path, Header{Kind: "payload", Version: 1}, payload{}))

	var out payload
	assert.Error(t, Read(path, Header{Kind: "weights", Version: 1}, &out))
	assert.Error(t, Read(path, Header{Kind: "payload", Version: 2}, &out))
	assert.Error(t, Read(filepath.Join(t.TempDir(), "missing"), Header{}, &out))
	assert.Error(t, Write("", Header{}, payload{}))
}
