package viewport

const (
	// inertiaSamples is how many trailing per-frame drag deltas feed the
	// release velocity.
	inertiaSamples = 5
	// inertiaDecay is the per-frame velocity multiplier after release.
	inertiaDecay = 0.92
	// inertiaFloor stops the glide once speed drops below this many screen
	// pixels per frame.
	inertiaFloor = 0.25
)

// Inertia integrates pan velocity after a drag ends. Feed it per-frame drag
// deltas while the pointer is down; on release it yields decaying deltas
// until the speed falls under the floor. Any new pointer-down cancels it.
type Inertia struct {
	samples [inertiaSamples][2]float64
	n       int
	next    int

	vx, vy float64
	active bool
}

// Observe records one per-frame drag delta while the pointer is held.
func (in *Inertia) Observe(dx, dy float64) {
	in.active = false
	in.samples[in.next] = [2]float64{dx, dy}
	in.next = (in.next + 1) % inertiaSamples
	if in.n < inertiaSamples {
		in.n++
	}
}

// Release averages the recorded deltas into a velocity and starts the glide.
func (in *Inertia) Release() {
	if in.n == 0 {
		return
	}
	var sx, sy float64
	for i := 0; i < in.n; i++ {
		sx += in.samples[i][0]
		sy += in.samples[i][1]
	}
	in.vx = sx / float64(in.n)
	in.vy = sy / float64(in.n)
	in.active = in.vx*in.vx+in.vy*in.vy > inertiaFloor*inertiaFloor
	in.reset()
}

// Cancel stops any active glide and clears recorded samples.
func (in *Inertia) Cancel() {
	in.active = false
	in.vx, in.vy = 0, 0
	in.reset()
}

func (in *Inertia) reset() {
	in.n = 0
	in.next = 0
}

// Active reports whether a glide is in progress.
func (in *Inertia) Active() bool { return in.active }

// Step advances the glide by one frame and returns the pan delta to apply.
// ok is false once the glide has stopped.
func (in *Inertia) Step() (dx, dy float64, ok bool) {
	if !in.active {
		return 0, 0, false
	}
	dx, dy = in.vx, in.vy
	in.vx *= inertiaDecay
	in.vy *= inertiaDecay
	if in.vx*in.vx+in.vy*in.vy < inertiaFloor*inertiaFloor {
		in.active = false
	}
	return dx, dy, true
}
