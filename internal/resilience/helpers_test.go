package resilience

import "github.com/sony/gobreaker/v2"

func countsOf(requests, failures uint32) gobreaker.Counts {
	return gobreaker.Counts{
		Requests:       requests,
		TotalFailures:  failures,
		TotalSuccesses: requests - failures,
	}
}
