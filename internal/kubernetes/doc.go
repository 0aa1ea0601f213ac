// Package kubernetes is the launcher's view of the cluster: pod naming and labelling,
// pod specs for launched workloads, a small pod client, and the controller manager that
// runs leader-elected background work.
package kubernetes
