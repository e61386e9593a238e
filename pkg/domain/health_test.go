package domain

import (
	"errors"
	"testing"
)

func TestClassifyTemperatureBands(t *testing.T) {
	cases := []struct {
		temp float64
		want HealthState
	}{
		{35.9, HealthCritical},
		{36.0, HealthAlert},
		{37.9, HealthAlert},
		{38.0, HealthNormal},
		{38.5, HealthNormal},
		{39.0, HealthNormal},
		{39.1, HealthAlert},
		{40.0, HealthAlert},
		{40.1, HealthCritical},
		{41.5, HealthCritical},
	}
	for _, tc := range cases {
		if got := ClassifyTemperature(tc.temp); got != tc.want {
			t.Errorf("ClassifyTemperature(%.1f) = %s, want %s", tc.temp, got, tc.want)
		}
	}
}

func TestDeriveHeartRateAnchors(t *testing.T) {
	cases := []struct {
		temp float64
		want int
	}{
		{35.0, 40}, // bradycardic floor clamps up to the minimum
		{36.0, 40},
		{37.0, 45},
		{38.0, 50},
		{38.3, 53},
		{39.0, 60},
		{39.5, 75},
		{40.0, 85},
		{41.0, 100},
		{42.0, 115},
	}
	for _, tc := range cases {
		if got := DeriveHeartRate(tc.temp); got != tc.want {
			t.Errorf("DeriveHeartRate(%.1f) = %d, want %d", tc.temp, got, tc.want)
		}
	}
}

func TestDeriveHeartRateDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := DeriveHeartRate(38.3); got != 53 {
			t.Fatalf("run %d: DeriveHeartRate(38.3) = %d, want 53", i, got)
		}
	}
}

func TestNewSampleDerivesMissingHeartRate(t *testing.T) {
	s, err := NewSample(38.3, nil)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	if !s.HeartRateDerived {
		t.Fatal("expected derived flag on synthesized heart rate")
	}
	if s.HeartRate != 53 {
		t.Fatalf("derived heart rate = %d, want 53", s.HeartRate)
	}
}

func TestNewSampleKeepsSuppliedHeartRate(t *testing.T) {
	hr := 98
	s, err := NewSample(38.3, &hr)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	if s.HeartRateDerived {
		t.Fatal("supplied heart rate must not be marked derived")
	}
	if s.HeartRate != 98 {
		t.Fatalf("heart rate = %d, want 98", s.HeartRate)
	}
}

func TestNewSampleRejectsOutOfRange(t *testing.T) {
	if _, err := NewSample(34.9, nil); err == nil {
		t.Fatal("expected validation error for low temperature")
	}
	if _, err := NewSample(42.1, nil); err == nil {
		t.Fatal("expected validation error for high temperature")
	}
	hr := 151
	if _, err := NewSample(38.0, &hr); err == nil {
		t.Fatal("expected validation error for high heart rate")
	}
	var verr ValidationError
	_, err := NewSample(30.0, nil)
	if !errors.As(err, &verr) || verr.Field != "temperature" {
		t.Fatalf("expected temperature validation error, got %v", err)
	}
}
