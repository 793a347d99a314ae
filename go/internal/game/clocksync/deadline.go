package clocksync

import "time"

// Deadline is the reconstructed server-side end of a round. Server instants
// are expressed as offsets from the server's epoch.
type Deadline struct {
	OriginEstimateAt    time.Time     // local time the sample was taken
	ServerEpochAtOrigin time.Duration // estimated server clock at OriginEstimateAt
	StartServerTime     time.Duration // server instant the round began
	TargetServerTime    time.Duration // server instant the round ends
	Latency             time.Duration // one-way latency used for the estimate
}

// ServerNow projects the server clock to the local instant now.
func (d Deadline) ServerNow(now time.Time) time.Duration {
	return d.ServerEpochAtOrigin + now.Sub(d.OriginEstimateAt)
}

// Remaining is recomputed from the sample on every call rather than
// decremented, so a fresh sample corrects any accumulated drift. Before the
// round starts it reports the full remaining length. Never negative.
func (d Deadline) Remaining(now time.Time) time.Duration {
	from := d.ServerNow(now)
	if from < d.StartServerTime {
		from = d.StartServerTime
	}
	remaining := d.TargetServerTime - from
	if remaining < 0 {
		return 0
	}
	return remaining
}
