package core

import "herdcore/pkg/domain"

type (
	Animal      = domain.Animal
	Sample      = domain.Sample
	Reading     = domain.Reading
	Control     = domain.Control
	ControlKey  = domain.ControlKey
	User        = domain.User
	CivilDate   = domain.CivilDate
	Shift       = domain.Shift
	Source      = domain.Source
	HealthState = domain.HealthState
	Change      = domain.Change
	Result      = domain.Result
)

const (
	ShiftMorning   = domain.ShiftMorning
	ShiftAfternoon = domain.ShiftAfternoon
	ShiftEvening   = domain.ShiftEvening
	ShiftNight     = domain.ShiftNight
)

const (
	SourceSensor = domain.SourceSensor
	SourceMobile = domain.SourceMobile
	SourceManual = domain.SourceManual
)

const (
	HealthNormal   = domain.HealthNormal
	HealthAlert    = domain.HealthAlert
	HealthCritical = domain.HealthCritical
)
