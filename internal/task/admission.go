package task

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Admission caps the total concurrently-running tasks' declared CPU and
// memory against a configured host budget (spec.md §4.J "Resource
// admission"). Tasks whose declared reservation exceeds the budget are
// downscaled to the budget with a warning rather than deadlocking forever.
type Admission struct {
	cpu    *semaphore.Weighted
	mem    *semaphore.Weighted
	cpuCap int64
	memCap int64
	warn   func(format string, args ...any)
}

// NewAdmission builds a two-dimensional weighted semaphore over millicores
// (cpu expressed as cores*1000) and bytes of memory.
func NewAdmission(cpuCores float64, memBytes int64, warn func(string, ...any)) *Admission {
	cpuCap := int64(cpuCores * 1000)
	if cpuCap < 1 {
		cpuCap = 1
	}
	if memBytes < 1 {
		memBytes = 1
	}
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Admission{
		cpu:    semaphore.NewWeighted(cpuCap),
		mem:    semaphore.NewWeighted(memBytes),
		cpuCap: cpuCap,
		memCap: memBytes,
		warn:   warn,
	}
}

// Admitter is the capability Runner needs from an admission budget:
// acquire a CPU/memory reservation, blocking until the host (or, for
// DistributedAdmission, the shared Redis-backed pool) has room. A single
// process uses *Admission; several hosts sharing one Redis instance use
// *DistributedAdmission instead — both satisfy this interface so Runner
// never branches on which.
type Admitter interface {
	Acquire(ctx context.Context, cpuCores float64, memBytes int64) (AdmissionReservation, error)
}

// AdmissionReservation is held until Release is called.
type AdmissionReservation interface {
	Release(ctx context.Context)
}

// Reservation is an admitted task's held weight, returned by Release.
type Reservation struct {
	a        *Admission
	cpu, mem int64
}

// Acquire blocks until cpu/mem budget is available, downscaling an
// over-budget request to the full capacity with a warning instead of
// blocking forever.
func (a *Admission) Acquire(ctx context.Context, cpuCores float64, memBytes int64) (AdmissionReservation, error) {
	cpuW := int64(cpuCores * 1000)
	if cpuW < 1 {
		cpuW = 1
	}
	if cpuW > a.cpuCap {
		a.warn("task requests %d millicores but host budget is %d; downscaling", cpuW, a.cpuCap)
		cpuW = a.cpuCap
	}
	memW := memBytes
	if memW < 1 {
		memW = 1
	}
	if memW > a.memCap {
		a.warn("task requests %d bytes memory but host budget is %d; downscaling", memW, a.memCap)
		memW = a.memCap
	}

	if err := a.cpu.Acquire(ctx, cpuW); err != nil {
		return nil, fmt.Errorf("task: acquire cpu admission: %w", err)
	}
	if err := a.mem.Acquire(ctx, memW); err != nil {
		a.cpu.Release(cpuW)
		return nil, fmt.Errorf("task: acquire memory admission: %w", err)
	}
	return &Reservation{a: a, cpu: cpuW, mem: memW}, nil
}

// Release returns the reservation's weight to the pool. Safe to call once.
// ctx is unused locally (the in-process semaphore release never blocks)
// but is part of AdmissionReservation so DistributedReservation's
// Redis-backed release, which does need it, can satisfy the same
// interface.
func (r *Reservation) Release(ctx context.Context) {
	if r == nil {
		return
	}
	r.a.cpu.Release(r.cpu)
	r.a.mem.Release(r.mem)
}
