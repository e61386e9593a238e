package domain

import "math"

// HealthState classifies a body temperature into one of three states using
// fixed bands calibrated for adult dairy cattle.
type HealthState string

// Health states ordered by severity.
const (
	HealthNormal   HealthState = "normal"
	HealthAlert    HealthState = "alert"
	HealthCritical HealthState = "critical"
)

// Temperature bands (°C). The normal band is closed on both ends; everything
// else is half-open so every temperature maps to exactly one state.
const (
	tempHypothermia = 36.0
	tempNormalLow   = 38.0
	tempNormalHigh  = 39.0
	tempHighFever   = 40.0
)

// ClassifyTemperature maps a temperature to a health state. Pure and total:
// 36 and 38..39 inclusive bounds per the calibration, above 40 critical.
func ClassifyTemperature(t float64) HealthState {
	switch {
	case t < tempHypothermia:
		return HealthCritical
	case t < tempNormalLow:
		return HealthAlert
	case t <= tempNormalHigh:
		return HealthNormal
	case t <= tempHighFever:
		return HealthAlert
	default:
		return HealthCritical
	}
}

// Heart rate bounds (BPM) accepted for a sample, derived or supplied.
const (
	HeartRateMin = 40
	HeartRateMax = 150
)

// DeriveHeartRate synthesizes a pulse from temperature when the producer
// cannot sense one. The mapping is piecewise linear over the classification
// bands, rounded to the nearest integer and clamped to [HeartRateMin,
// HeartRateMax], so derivation is deterministic.
func DeriveHeartRate(t float64) int {
	var bpm float64
	switch {
	case t < tempHypothermia:
		bpm = 35 // bradycardic floor, clamped up below
	case t < tempNormalLow:
		bpm = 40 + (t-tempHypothermia)*5
	case t <= tempNormalHigh:
		bpm = 50 + (t-tempNormalLow)*10
	case t <= tempHighFever:
		bpm = 65 + (t-tempNormalHigh)*20
	default:
		bpm = 85 + (t-tempHighFever)*15
	}
	rounded := int(math.Round(bpm))
	if rounded < HeartRateMin {
		return HeartRateMin
	}
	if rounded > HeartRateMax {
		return HeartRateMax
	}
	return rounded
}
