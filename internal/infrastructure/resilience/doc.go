/*
Package resilience provides a circuit breaker for host reads that may fail
repeatedly, such as procfs on a system without it.

After Threshold consecutive failures the breaker opens and rejects calls
with ErrCircuitOpen for Cooldown. It then lets Probes calls through; if they
all succeed it closes, and any failure reopens it.

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                            Open
*/
package resilience
