package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the cache key for a session's latest snapshot
func (r *CacheKeyStruct) SessionSnapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

// QuestionCategoriesKey returns the cache key for the question bank category listing
func (r *CacheKeyStruct) QuestionCategoriesKey() string {
	return "questions:categories"
}

var CacheKey = NewCacheKeyStruct()
