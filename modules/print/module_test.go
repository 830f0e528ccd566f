package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/value"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)
	_, err := p.Init(context.Background(), nil)
	require.NoError(t, err)

	res, err := p.Call(context.Background(), PrintID, []value.Value{value.Wrap(map[string]string{"b": "2", "a": "one"})})
	require.NoError(t, err)
	assert.Equal(t, value.Void, res)
	assert.Equal(t, "      a = \"one\"\n      b = \"2\"\n", buf.String())

	res, err = p.Call(context.Background(), FormatID, []value.Value{value.Wrap(map[string]string(nil))})
	require.NoError(t, err)
	assert.Equal(t, "      (null)\n", value.MustUnwrap[string](res))
}
