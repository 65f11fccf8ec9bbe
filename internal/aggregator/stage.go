package aggregator

import "sync/atomic"

// Stage is the position of a stream within one refresh cycle.
type Stage int32

const (
	StageIdle Stage = iota
	StageCheckingCache
	StageCheckingRateLimit
	StageFetching
	StageScoring
	StageCachedReady
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageCheckingCache:
		return "CHECKING_CACHE"
	case StageCheckingRateLimit:
		return "CHECKING_RATE_LIMIT"
	case StageFetching:
		return "FETCHING"
	case StageScoring:
		return "SCORING"
	case StageCachedReady:
		return "CACHED_READY"
	default:
		return "UNKNOWN"
	}
}

// Stream names an independently refreshed data set.
type Stream string

const (
	StreamAtmospheric Stream = "atmospheric"
	StreamHotZones    Stream = "hotzones"
	StreamScan        Stream = "scan"
)

// stream tracks whether a refresh is running and where it is.
type stream struct {
	inflight atomic.Bool
	stage    atomic.Int32
}

// begin claims the stream. It returns false when a refresh is already running.
func (s *stream) begin() bool {
	if !s.inflight.CompareAndSwap(false, true) {
		return false
	}
	s.set(StageCheckingCache)
	return true
}

func (s *stream) end() {
	s.set(StageCachedReady)
	s.inflight.Store(false)
}

func (s *stream) set(stage Stage) { s.stage.Store(int32(stage)) }

func (s *stream) current() Stage { return Stage(s.stage.Load()) }

func (s *stream) loading() bool { return s.inflight.Load() }
