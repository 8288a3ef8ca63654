package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgv/internal/platform/config"
)

func TestNewWithoutBrokers(t *testing.T) {
	client, err := New(config.Kafka{})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.NoError(t, Health(context.Background(), client))
}
