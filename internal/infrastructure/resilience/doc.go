/*
Package resilience guards upstream calls with circuit breakers.

The XHR interceptor keeps one Breaker per destination origin in a Group, so a
dead upstream fails fast instead of holding proxied requests through every
retry.

	group := resilience.NewGroup(resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	err := group.Get("https://api.example").Do(func() error {
		resp, err = client.Do(req)
		return err
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
