package env_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

func TestEnv(t *testing.T) {
	t.Setenv("DYNPLUG_ENV_A", "1")
	t.Setenv("DYNPLUG_ENV_B", "two")
	ctx := context.Background()
	p := New()
	_, err := p.Init(ctx, nil)
	require.NoError(t, err)

	res, err := p.Call(ctx, AllID, nil)
	require.NoError(t, err)
	assert.Equal(t, "two", value.MustUnwrap[Output](res).All["DYNPLUG_ENV_B"])

	res, err = p.Call(ctx, GetID, []value.Value{value.Wrap("DYNPLUG_ENV_A")})
	require.NoError(t, err)
	assert.Equal(t, "1", value.MustUnwrap[string](res))

	_, err = p.Call(ctx, GetID, []value.Value{value.Wrap("DYNPLUG_ENV_MISSING")})
	assert.ErrorIs(t, err, plugerr.ErrExecution)

	res, err = p.Call(ctx, KeysID, []value.Value{value.Wrap("DYNPLUG_ENV_")})
	require.NoError(t, err)
	assert.Equal(t, []string{"DYNPLUG_ENV_A", "DYNPLUG_ENV_B"}, value.MustUnwrap[[]string](res))
}
