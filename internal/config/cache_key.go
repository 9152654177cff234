package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID string) string {
	return fmt.Sprintf("login:%s", studentID)
}

// EnrollmentSessionKey maps an enrollment number to its active session id,
// backing the duplicate-login policy across nodes.
func (r *CacheKeyStruct) EnrollmentSessionKey(enrollmentNo string) string {
	return fmt.Sprintf("enrollment:%s:session", enrollmentNo)
}

// StudentExamStartKey returns the cache key for a student's exam start time.
func (r *CacheKeyStruct) StudentExamStartKey(studentID string) string {
	return fmt.Sprintf("student:%s:exam_start", studentID)
}

// ProctorStatusChannel is the Redis PubSub channel carrying full status
// snapshots so admin streams on other nodes stay current.
func (r *CacheKeyStruct) ProctorStatusChannel() string {
	return "proctor:status"
}

// ProctorActivityChannel is the Redis PubSub channel carrying activity events.
func (r *CacheKeyStruct) ProctorActivityChannel() string {
	return "proctor:activity"
}

var CacheKey = NewCacheKeyStruct()
