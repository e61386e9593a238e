package domain

import "fmt"

// Temperature bounds (°C) accepted for any sample.
const (
	TemperatureMin = 35.0
	TemperatureMax = 42.0
)

// NewSample normalizes a raw measurement pair into an immutable Sample.
// Temperature is required and range-checked. A nil heartRate is derived from
// temperature; a supplied one is range-checked and used as-is.
func NewSample(temperature float64, heartRate *int) (Sample, error) {
	if temperature < TemperatureMin || temperature > TemperatureMax {
		return Sample{}, ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("%.1f outside accepted range [%.1f, %.1f]", temperature, TemperatureMin, TemperatureMax),
		}
	}
	if heartRate == nil {
		return Sample{
			Temperature:      temperature,
			HeartRate:        DeriveHeartRate(temperature),
			HeartRateDerived: true,
		}, nil
	}
	if *heartRate < HeartRateMin || *heartRate > HeartRateMax {
		return Sample{}, ValidationError{
			Field:   "heart_rate",
			Message: fmt.Sprintf("%d outside accepted range [%d, %d]", *heartRate, HeartRateMin, HeartRateMax),
		}
	}
	return Sample{Temperature: temperature, HeartRate: *heartRate}, nil
}
