package dsp

import "math"

// SteeringPhase converts an arrival angle (radians from broadside) to the
// inter-channel phase (radians) seen by two elements spaced
// spacingWavelength wavelengths apart.
func SteeringPhase(thetaRad, spacingWavelength float64) float64 {
	return 2 * math.Pi * spacingWavelength * math.Sin(thetaRad)
}

// SteeringAngle is the inverse of SteeringPhase. Phases beyond the
// physically reachable range are clamped to ±π/2.
func SteeringAngle(phaseRad, spacingWavelength float64) float64 {
	if spacingWavelength == 0 {
		return 0
	}
	arg := phaseRad / (2 * math.Pi * spacingWavelength)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	return math.Asin(arg)
}
