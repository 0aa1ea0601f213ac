// Package sweeper holds the leader-elected cluster hygiene loops: the pod TTL sweeper and
// the runaway pod detector, plus the Schedule runnable that drives them on a timer.
package sweeper
