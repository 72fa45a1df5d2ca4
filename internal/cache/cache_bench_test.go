package cache

import (
	"runtime"
	"strconv"
	"testing"
	"time"
)

const benchURL = "https://services.swpc.noaa.gov/text/3-day-forecast.txt"

// createTestEntry creates a forecast-sized entry for benchmarks.
func createTestEntry() Entry {
	return NewEntry(make([]byte, 4096), time.Now())
}

// BenchmarkMemoryCache_Get_Hit benchmarks Get on a cached URL.
func BenchmarkMemoryCache_Get_Hit(b *testing.B) {
	c := NewMemoryCache()
	c.Set(benchURL, createTestEntry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(benchURL)
	}
}

// BenchmarkMemoryCache_Get_Miss benchmarks Get on an unknown URL.
func BenchmarkMemoryCache_Get_Miss(b *testing.B) {
	c := NewMemoryCache()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(benchURL)
	}
}

// BenchmarkMemoryCache_Set benchmarks Set replacing one URL.
func BenchmarkMemoryCache_Set(b *testing.B) {
	c := NewMemoryCache()
	entry := createTestEntry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(benchURL, entry)
	}
}

// BenchmarkMemoryCache_SetIfNewer benchmarks the ordered write used by backing lookups.
func BenchmarkMemoryCache_SetIfNewer(b *testing.B) {
	c := NewMemoryCache()
	entry := createTestEntry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.SetIfNewer(benchURL, entry)
	}
}

// BenchmarkMemoryCache_Concurrent benchmarks parallel readers of one URL.
func BenchmarkMemoryCache_Concurrent(b *testing.B) {
	c := NewMemoryCache()
	c.Set(benchURL, createTestEntry())

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = c.Get(benchURL)
		}
	})
}

// BenchmarkEntry_Payload benchmarks the defensive copy handed to callers.
func BenchmarkEntry_Payload(b *testing.B) {
	entry := createTestEntry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = entry.Payload()
	}
}

// BenchmarkMemoryCache_MemoryPerEntry estimates memory usage per cached URL.
func BenchmarkMemoryCache_MemoryPerEntry(b *testing.B) {
	c := NewMemoryCache()
	entry := createTestEntry()

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	for i := 0; i < b.N; i++ {
		c.Set(benchURL+"?n="+strconv.Itoa(i), entry)
	}

	runtime.GC()
	runtime.ReadMemStats(&m2)

	bytesPerEntry := float64(m2.Alloc-m1.Alloc) / float64(b.N)
	b.ReportMetric(bytesPerEntry, "bytes/entry")
}
