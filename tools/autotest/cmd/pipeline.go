package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ExamplePipeline compares pipelined replies
type ExamplePipeline struct {
	*Pair
}

func NewExamplePipeline(p *Pair) *ExamplePipeline {
	return &ExamplePipeline{Pair: p}
}

// PipelineEqual sends args as echo commands in one batch on both clients
func (ep *ExamplePipeline) PipelineEqual(t *testing.T, msgs ...string) {
	for _, msg := range msgs {
		require.NoError(t, ep.Conn.Send("ECHO", msg))
		require.NoError(t, ep.Cli.Queue("ECHO", msg))
	}
	require.NoError(t, ep.Conn.Flush())
	assert.Equal(t, len(msgs), ep.Cli.Pending())

	replies, err := ep.Cli.TakeAll()
	assert.NoError(t, err)
	assert.Len(t, replies, len(msgs))
	for i := range msgs {
		want, err := ep.Conn.Receive()
		assert.NoError(t, err)
		assert.Equal(t, normalizeRedigo(want), Normalize(replies[i]))
		assert.Equal(t, msgs[i], Normalize(replies[i]))
	}
}
