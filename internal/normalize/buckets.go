package normalize

import "github.com/nhle/helpdesk-sync/internal/model"

// NotApplicable is the bucket for missing, zero, negative or unparseable
// durations.
const NotApplicable = "Not Applicable"

// bucket is an upper bound (inclusive) and the label of the range below it.
type bucket struct {
	upTo  int64
	label string
}

// scale is an ordered list of buckets plus the label for values above the
// last bound.
type scale struct {
	buckets []bucket
	over    string
}

var (
	resolutionMinutes = scale{
		buckets: []bucket{
			{upTo: 1440, label: "0 - 1 days"},
			{upTo: 10080, label: "1 - 7 days"},
			{upTo: 20160, label: "7 - 14 days"},
		},
		over: "> 14 days",
	}

	replyMinutes = scale{
		buckets: []bucket{
			{upTo: 60, label: "0 - 1 hours"},
			{upTo: 480, label: "1 - 8 hours"},
			{upTo: 1440, label: "8 - 24 hours"},
		},
		over: "> 24 hours",
	}

	timeSpentSeconds = scale{
		buckets: []bucket{
			{upTo: 3600, label: "0 - 1 hours"},
			{upTo: 28800, label: "1 - 8 hours"},
			{upTo: 86400, label: "8 - 24 hours"},
		},
		over: "> 24 hours",
	}
)

func (s scale) label(v int64) string {
	if v <= 0 {
		return NotApplicable
	}
	for _, b := range s.buckets {
		if v <= b.upTo {
			return b.label
		}
	}
	return s.over
}

func (s scale) labelAny(v any) string {
	n, ok := model.ToInt64(v)
	if !ok {
		return NotApplicable
	}
	return s.label(n)
}

// ResolutionBucket labels a full resolution time in minutes.
func ResolutionBucket(v any) string { return resolutionMinutes.labelAny(v) }

// ReplyBucket labels a first reply time in minutes.
func ReplyBucket(v any) string { return replyMinutes.labelAny(v) }

// TimeSpentBucket labels a total time spent in seconds.
func TimeSpentBucket(v any) string { return timeSpentSeconds.labelAny(v) }
