package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessLog records one HTTP request handled by the server.
type AccessLog struct {
	ID        uuid.UUID     `json:"id"`
	RequestID string        `json:"requestId"`
	UserID    *uuid.UUID    `json:"userId,omitempty"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int32         `json:"status"`
	Duration  time.Duration `json:"duration"`
	Bytes     int64         `json:"bytes"`
	RemoteIP  string        `json:"remoteIp"`
	UserAgent string        `json:"userAgent"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AccessLogStats aggregates access logs matching a filter.
type AccessLogStats struct {
	Total       int64         `json:"total"`
	Errors      int64         `json:"errors"` // status >= 500
	ClientError int64         `json:"clientErrors"`
	UniqueUsers int64         `json:"uniqueUsers"`
	AvgDuration time.Duration `json:"avgDuration"`
	MaxDuration time.Duration `json:"maxDuration"`
}
