package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptDraftKey returns the Redis hash key holding an attempt's draft
// answers, one field per question id.
func (r *CacheKeyStruct) AttemptDraftKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:draft", attemptID)
}

var CacheKey = NewCacheKeyStruct()
