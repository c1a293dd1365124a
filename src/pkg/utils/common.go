package utils

import (
	"math/rand"

	"github.com/Blackdeer1524/xalog/src/pkg/assert"
)

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// GenerateUniqueInts returns count distinct integers from [minVal, maxVal].
// Dense requests shuffle the whole range, sparse ones sample with rejection.
func GenerateUniqueInts[T Integer](count int, minVal, maxVal T, r *rand.Rand) []T {
	assert.Assert(minVal <= maxVal, "empty range [%v, %v]", minVal, maxVal)

	rangeSize := int(maxVal-minVal) + 1
	assert.Assert(
		count <= rangeSize,
		"can't pick %d unique numbers out of %d",
		count,
		rangeSize,
	)

	if count == 0 {
		return []T{}
	}

	if count > rangeSize/2 {
		all := make([]T, rangeSize)
		for i := range rangeSize {
			all[i] = minVal + T(i)
		}
		r.Shuffle(rangeSize, func(i, j int) {
			all[i], all[j] = all[j], all[i]
		})
		return all[:count]
	}

	seen := make(map[T]struct{}, count)
	result := make([]T, 0, count)
	for len(result) < count {
		v := minVal + T(r.Intn(rangeSize))
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}
