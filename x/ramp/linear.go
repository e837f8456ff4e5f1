package ramp

import "blcbus-go/x/mathx"

// Toward moves cur at most step units toward to and returns the new level.
// step==0 snaps to to.
func Toward(cur, to, step uint16) uint16 {
	if step == 0 || cur == to {
		return to
	}
	if to > cur {
		return cur + mathx.Min(step, to-cur)
	}
	return cur - mathx.Min(step, cur-to)
}

// Steps reports how many calls to Toward reach to from cur.
func Steps(cur, to, step uint16) int {
	if cur == to {
		return 0
	}
	if step == 0 {
		return 1
	}
	d := uint32(mathx.Max(cur, to) - mathx.Min(cur, to))
	return int(mathx.CeilDiv(d, uint32(step)))
}
