package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObjectName(t *testing.T) {
	c := &Client{bucket: "order-imports"}

	tests := []struct {
		name     string
		filePath string
		want     string
	}{
		{"bucket prefix form", "order-imports/abc123_orders.csv", "abc123_orders.csv"},
		{"nested object name", "order-imports/2025/06/orders.csv", "2025/06/orders.csv"},
		{"path-style url", "http://localhost:9000/order-imports/abc123_orders.csv", "abc123_orders.csv"},
		{"https public url", "https://files.example.com/order-imports/abc123_orders.csv", "abc123_orders.csv"},
		{"url without bucket segment", "https://cdn.example.com/abc123_orders.csv", "abc123_orders.csv"},
		{"plain path without bucket prefix", "other-bucket/file.csv", "other-bucket/file.csv"},
		{"bare object name", "abc123_orders.csv", "abc123_orders.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ExtractObjectName(tt.filePath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractObjectNameErrors(t *testing.T) {
	c := &Client{bucket: "order-imports"}

	for _, filePath := range []string{"", "https://example.com/"} {
		_, err := c.ExtractObjectName(filePath)
		assert.Error(t, err, filePath)
	}
}

func TestObjectURL(t *testing.T) {
	plain := &Client{bucket: "order-imports"}
	assert.Equal(t, "order-imports/abc.csv", plain.ObjectURL("abc.csv"))

	public := &Client{bucket: "order-imports", publicBaseURL: "https://files.example.com"}
	assert.Equal(t, "https://files.example.com/order-imports/abc.csv", public.ObjectURL("abc.csv"))
}
