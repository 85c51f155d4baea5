// Package dll implements the §4.3 rate-tracking control loop: a
// two-pole digital phase-locked loop that turns a stream of
// (observed error, elapsed time) samples into a smoothed rate ratio
// and absorbs jitter without chasing every individual sample.
package dll

import "math"

const (
	// BWMax is the bandwidth used at start and immediately after a
	// recovery: wide, for quick lock.
	BWMax = 0.128
	// BWMin is the steady-state bandwidth once tracking has been
	// stable for BWPeriod: narrow, for low jitter.
	BWMin = 0.016
	// BWPeriod is how long tracking must be stable before narrowing
	// from BWMax to BWMin.
	BWPeriod = 3.0 // seconds

	dtMin = 0.95
	dtMax = 1.05
)

// DLL is the smoothed rate estimator of §3's "DLL state". Zero value
// is not usable; construct with New.
type DLL struct {
	base float64 // average period, seconds
	z    float64 // internal accumulator
	dt   float64 // rate ratio, clamped to [0.95, 1.05]
	bw   float64 // current bandwidth, Hz

	stableFor float64 // seconds of tracking since last bandwidth reset
}

// New creates a DLL seeded at BWMax, as happens at engine start and
// after every recovery (§4.3, §4.6).
func New() *DLL {
	d := &DLL{}
	d.Reset()
	return d
}

// Reset re-seeds the loop at BWMax, per the DLL being "re-seeded at
// start and after every recovery" (§2 flow, §4.6 step 3).
func (d *DLL) Reset() {
	d.base = 0
	d.z = 0
	d.dt = 1.0
	d.bw = BWMax
	d.stableFor = 0
}

// Update feeds one (err, elapsed) sample through the loop and returns
// the updated (base, dt). err and elapsed are both in seconds. dt is
// always clamped to [0.95, 1.05] before being returned (§3 invariant,
// §8 invariant 5).
func (d *DLL) Update(err, elapsed float64) (base, dt float64) {
	if elapsed <= 0 {
		// Degenerate sample; don't let a zero or negative elapsed
		// divide dt to infinity/NaN. Leave the loop state untouched
		// and report the last-known values.
		return d.base, d.clampedDT()
	}

	omega := 2 * math.Pi * d.bw
	b := math.Sqrt2 * omega
	c := omega * omega

	d.base += b*err + d.z
	d.z += c * err
	d.dt = d.base / elapsed

	d.stableFor += elapsed
	if d.bw > BWMin && d.stableFor >= BWPeriod {
		d.bw = BWMin
	}

	return d.base, d.clampedDT()
}

func (d *DLL) clampedDT() float64 {
	switch {
	case d.dt < dtMin:
		return dtMin
	case d.dt > dtMax:
		return dtMax
	default:
		return d.dt
	}
}

// DT returns the last clamped rate ratio without feeding a new sample.
func (d *DLL) DT() float64 { return d.clampedDT() }

// Base returns the current smoothed average period, in seconds.
func (d *DLL) Base() float64 { return d.base }

// Bandwidth returns the loop's current bandwidth, for telemetry and
// tests asserting the BWMax→BWMin narrowing.
func (d *DLL) Bandwidth() float64 { return d.bw }
