package navigation

// PID is a scalar proportional-integral-derivative controller.
//
// The integral and previous error update on every call. There is no reset
// and no windup clamp, so a long approach keeps accumulating integral.
// A PID must only be used from one goroutine.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	integral  float64
	prevError float64
}

// NewPID creates a controller with the given gains.
func NewPID(g Gains) *PID {
	return &PID{Kp: g.Kp, Ki: g.Ki, Kd: g.Kd}
}

// Update feeds one measurement and returns the control output.
func (p *PID) Update(current, target float64) float64 {
	err := target - current
	p.integral += err
	derivative := err - p.prevError
	p.prevError = err

	return p.Kp*err + p.Ki*p.integral + p.Kd*derivative
}

// Integral returns the accumulated integral term.
func (p *PID) Integral() float64 {
	return p.integral
}
