package utils

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenBatchKey(t *testing.T) {
	base := GenBatchKey("bankA", "bankB", "bankC")

	tests := []struct {
		name  string
		keys  []string
		equal bool
	}{
		{name: "reordered", keys: []string{"bankC", "bankA", "bankB"}, equal: true},
		{name: "repeated", keys: []string{"bankA", "bankB", "bankB", "bankC"}, equal: true},
		{name: "subset", keys: []string{"bankA", "bankB"}, equal: false},
		{name: "concatenation", keys: []string{"bankAbankB", "bankC"}, equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, GenBatchKey(tt.keys...) == base)
		})
	}

	id, err := uuid.FromString(base)
	require.NoError(t, err)
	assert.Equal(t, byte(3), id.Version())

	assert.Equal(t, uuid.Nil.String(), GenBatchKey())
}
