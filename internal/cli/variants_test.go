package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notacms/internal/registry"
	"github.com/roach88/notacms/internal/syncer"
)

func TestContentfulVariant_MaxRetries(t *testing.T) {
	tests := []struct {
		name    string
		opts    registry.Options
		wantErr bool
	}{
		{"default", registry.Options{}, false},
		{"zero", registry.Options{"maxRetries": int64(0)}, false},
		{"positive", registry.Options{"maxRetries": int64(5)}, false},
		{"negative", registry.Options{"maxRetries": int64(-1)}, true},
		{"negative string", registry.Options{"maxRetries": "-3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Sources.Build("contentful", tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, syncer.IsConfigError(err))
				assert.Contains(t, err.Error(), "maxRetries")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, src)
		})
	}
}

func TestFixtureVariant_RequiresPath(t *testing.T) {
	_, err := Sources.Build("fixture", registry.Options{})
	require.Error(t, err)
	assert.True(t, syncer.IsConfigError(err))
}
