package forward

// Partition 将列表按顺序切分为 n 段连续分片，每段最多 ceil(total/n) 条
// 总是返回 n 个分片（末尾分片可能为空），按顺序拼接即为原列表
func Partition[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = 1
	}
	size := (len(items) + n - 1) / n
	parts := make([][]T, n)
	for i := range parts {
		start := min(i*size, len(items))
		end := min(start+size, len(items))
		parts[i] = items[start:end:end]
	}
	return parts
}
