package budget

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRateLimitWait is assumed when a rate limit is detected but the
// provider gives no reset hint.
const DefaultRateLimitWait = 60 * time.Second

// RateLimitInfo contains parsed rate limit details from a provider error
type RateLimitInfo struct {
	DetectedAt  time.Time
	ResetAt     time.Time // When the limit resets
	WaitSeconds int64
	RawMessage  string
}

// TimeUntilReset calculates duration until the rate limit resets
func (r *RateLimitInfo) TimeUntilReset() time.Duration {
	if r.ResetAt.IsZero() {
		return 0
	}
	return time.Until(r.ResetAt)
}

// IsExpired checks if the rate limit has already expired
func (r *RateLimitInfo) IsExpired() bool {
	if r.ResetAt.IsZero() {
		return true
	}
	return time.Now().After(r.ResetAt)
}

var (
	// retry in 30 seconds / retry after 30s / Retry-After: 30
	retrySecondsPattern = regexp.MustCompile(`(?i)retry(?:[- ]after:?|\s+in)\s*(\d+)\s*(?:seconds?|s)?\b`)

	// reset at <unix timestamp>
	resetUnixPattern = regexp.MustCompile(`(?i)reset(?:s)?(?:\s+at)?[:=\s]+(\d{10})\b`)

	rateLimitIndicator = regexp.MustCompile(`(?i)(rate.?limit|quota exceeded|429|too.?many.?requests|overloaded)`)
)

// ParseRateLimit detects a rate limit in provider output or an error
// message. Returns nil when the text does not look like a rate limit.
func ParseRateLimit(output string) *RateLimitInfo {
	if output == "" || !rateLimitIndicator.MatchString(output) {
		return nil
	}

	info := &RateLimitInfo{
		DetectedAt: time.Now(),
		RawMessage: output,
	}

	if matches := resetUnixPattern.FindStringSubmatch(output); len(matches) > 1 {
		if ts, err := strconv.ParseInt(matches[1], 10, 64); err == nil {
			info.ResetAt = time.Unix(ts, 0)
			info.WaitSeconds = info.ResetAt.Unix() - time.Now().Unix()
			return info
		}
	}

	if matches := retrySecondsPattern.FindStringSubmatch(output); len(matches) > 1 {
		if seconds, err := strconv.ParseInt(matches[1], 10, 64); err == nil {
			info.setWait(seconds)
			return info
		}
	}

	if seconds, ok := retryAfterFromJSON(output); ok {
		info.setWait(seconds)
		return info
	}

	info.setWait(int64(DefaultRateLimitWait / time.Second))
	return info
}

func (r *RateLimitInfo) setWait(seconds int64) {
	r.WaitSeconds = seconds
	r.ResetAt = time.Now().Add(time.Duration(seconds) * time.Second)
}

// retryAfterFromJSON looks for a retry_after field in a JSON or JSONL body.
func retryAfterFromJSON(data string) (int64, bool) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		switch v := obj["retry_after"].(type) {
		case float64:
			if v > 0 {
				return int64(v), true
			}
		case string:
			if seconds, err := strconv.ParseInt(v, 10, 64); err == nil && seconds > 0 {
				return seconds, true
			}
		}
	}
	return 0, false
}
