package server

import (
	"time"

	"golang.org/x/time/rate"
)

// The bucket holds 40 tokens with 20/s refill, costing actions 1 token and
// sync frames 0.25. x/time/rate spends whole tokens only, so the bucket
// runs at 4x scale and the costs scale with it.
const (
	limiterBurst     = 160
	limiterRefill    = rate.Limit(80)
	costDomainAction = 4
	costSyncFrame    = 1
)

type frameLimiter struct {
	bucket *rate.Limiter
}

func newFrameLimiter() *frameLimiter {
	return &frameLimiter{bucket: rate.NewLimiter(limiterRefill, limiterBurst)}
}

// allow consumes the frame's cost. Zero-cost frames always pass; rejected
// frames consume nothing.
func (l *frameLimiter) allow(cost int) bool {
	if cost == 0 {
		return true
	}
	return l.bucket.AllowN(time.Now(), cost)
}

func frameCost(frameType string) int {
	switch frameType {
	case frameRegistryAction, frameListAction, frameBulletinAction:
		return costDomainAction
	case frameSync:
		return costSyncFrame
	default:
		return 0
	}
}
