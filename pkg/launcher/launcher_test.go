package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	assert.Equal(t, 9222, opts.port())
	assert.Equal(t, "http://127.0.0.1:9222", opts.endpoint())

	opts.Port = 9333
	assert.Equal(t, "http://127.0.0.1:9333", opts.endpoint())
}

func TestCandidatesNotEmpty(t *testing.T) {
	assert.NotEmpty(t, candidates())
}
