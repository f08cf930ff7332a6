package forward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		total int
		n     int
		sizes []int
	}{
		{"even", 10, 2, []int{5, 5}},
		{"uneven", 10, 3, []int{4, 4, 2}},
		{"more sessions than items", 2, 4, []int{1, 1, 0, 0}},
		{"empty", 0, 3, []int{0, 0, 0}},
		{"non-positive n", 5, 0, []int{5}},
		{"last chunk empty", 9, 4, []int{3, 3, 3, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.total)
			for i := range items {
				items[i] = i
			}

			parts := Partition(items, tt.n)

			var sizes, joined []int
			for _, p := range parts {
				sizes = append(sizes, len(p))
				joined = append(joined, p...)
			}
			assert.Equal(t, tt.sizes, sizes)
			if tt.total == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, items, joined, "partitions must cover every item once, in order")
			}
		})
	}
}

func TestPartitionChunksDoNotAlias(t *testing.T) {
	items := []int{1, 2, 3, 4}
	parts := Partition(items, 2)

	parts[0] = append(parts[0], 99)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}
