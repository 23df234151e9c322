package ratelimit

// Resource names the two budgets the distributed admission limiter tracks
// across hosts sharing one Redis instance (spec.md §4.J "Resource
// admission", wired to a distributed backing store per SPEC_FULL.md §2).
type Resource string

const (
	ResourceCPU    Resource = "cpu_millicores"
	ResourceMemory Resource = "memory_bytes"
)

// key builds the Redis string key this resource's held-amount counter is
// tracked under for a given admission pool.
func (r Resource) key(pool string) string {
	return "wdlrun:admission:" + pool + ":" + string(r)
}
