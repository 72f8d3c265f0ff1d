package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartitionName(t *testing.T) {
	at := time.Date(2025, 5, 28, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "readings_y2025m05", partitionName(at))

	// Local-zone instants map onto the UTC month they belong to.
	bangkok := time.FixedZone("+07:00", 7*3600)
	edge := time.Date(2025, 6, 1, 3, 0, 0, 0, bangkok) // 2025-05-31T20:00Z
	assert.Equal(t, "readings_y2025m05", partitionName(edge))
}
