package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantLoginKey returns the cache key holding a participant's active token ID
func (r *CacheKeyStruct) ParticipantLoginKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

// ExamDefinitionKey returns the cache key for an exam's window and question set
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// ExpirySweepLock returns the key used to keep the expiry sweep to one replica at a time
func (r *CacheKeyStruct) ExpirySweepLock() string {
	return "lock:expiry_sweep"
}

var CacheKey = NewCacheKeyStruct()
