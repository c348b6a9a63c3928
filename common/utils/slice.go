package utils

import (
	"github.com/duke-git/lancet/v2/slice"
)

// SliceUnique 去重并保持首次出现的顺序
func SliceUnique[T comparable](s []T) []T {
	return slice.Unique(s)
}

// SliceChunk 切片分块
func SliceChunk[T any](s []T, size int) [][]T {
	return slice.Chunk(s, size)
}
