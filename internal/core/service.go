package core

import (
	"context"
	"fmt"
	"time"

	"herdcore/pkg/domain"
)

// Service exposes the ingestion and query operations of the control ledger.
// It is the only writer path: gateways translate external payloads into the
// inputs below and never touch the store directly.
type Service struct {
	store   domain.PersistentStore
	loc     *time.Location
	nowFn   func() time.Time
	metrics MetricsRecorder
	tracer  Tracer
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer attaches a tracer to the service.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithNowFunc overrides the service clock for deterministic tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service over the supplied store. The location is
// the deployment's civil time zone used for all shift resolution; nil
// defaults to UTC.
func NewService(store domain.PersistentStore, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		store:   store,
		loc:     loc,
		nowFn:   func() time.Time { return time.Now().UTC() },
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Location returns the service's civil time zone.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := time.Now()
	spanCtx, span := s.tracer.Start(ctx, operation)
	err := fn(spanCtx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	return err
}

// DeviceReadingInput carries one raw collar submission.
type DeviceReadingInput struct {
	CollarID     int64
	DisplayName  string
	RadioAddress *string
	Temperature  float64
	HeartRate    *int
	ObservedAt   time.Time // zero means "now"
	Source       Source    // defaults to SourceSensor
}

// DeviceReadingResult reports the outcome of a device ingestion.
type DeviceReadingResult struct {
	Animal          Animal
	AnimalCreated   bool
	Reading         Reading
	Control         Control
	AlreadyRecorded bool
}

// RecordDeviceReading runs the full sensor pipeline: identity resolution,
// sample normalization, reading creation, classification, shift resolution,
// and the ledger's insert-if-absent. A taken shift slot is reported through
// AlreadyRecorded, never as an error.
func (s *Service) RecordDeviceReading(ctx context.Context, in DeviceReadingInput) (DeviceReadingResult, error) {
	var out DeviceReadingResult
	err := s.instrument(ctx, "record_device_reading", func(ctx context.Context) error {
		if in.CollarID <= 0 {
			return domain.ValidationError{Field: "collar_id", Message: "must be a positive integer"}
		}
		sample, err := domain.NewSample(in.Temperature, in.HeartRate)
		if err != nil {
			return err
		}
		source := in.Source
		if source == "" {
			source = SourceSensor
		}
		_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, known := tx.FindAnimalByCollar(in.CollarID); !known {
				if in.DisplayName == "" {
					return domain.ValidationError{Field: "display_name", Message: "required on first contact"}
				}
				if in.RadioAddress == nil || *in.RadioAddress == "" {
					return domain.ValidationError{Field: "radio_address", Message: "required on first contact"}
				}
			}
			animal, created, err := tx.ResolveAnimal(in.CollarID, in.DisplayName, in.RadioAddress)
			if err != nil {
				return err
			}
			occurredAt := in.ObservedAt
			if occurredAt.IsZero() {
				occurredAt = s.nowFn()
			}
			reading, err := tx.CreateReading(Reading{
				AnimalID:   animal.ID,
				Sample:     sample,
				OccurredAt: occurredAt,
				Source:     source,
			})
			if err != nil {
				return err
			}
			shift, date := domain.ResolveShift(reading.OccurredAt, s.loc)
			readingID := reading.ID
			control, controlCreated, err := tx.CreateControl(Control{
				AnimalID:    animal.ID,
				Date:        date,
				Shift:       shift,
				Temperature: sample.Temperature,
				HeartRate:   sample.HeartRate,
				ReadingID:   &readingID,
			})
			if err != nil {
				return err
			}
			out = DeviceReadingResult{
				Animal:          animal,
				AnimalCreated:   created,
				Reading:         reading,
				Control:         control,
				AlreadyRecorded: !controlCreated,
			}
			return nil
		})
		return err
	})
	if err != nil {
		return DeviceReadingResult{}, err
	}
	return out, nil
}

// PromoteReadingInput identifies a prior reading a user attests into a control.
type PromoteReadingInput struct {
	Username     string
	CollarID     int64
	ReadingID    string // optional; empty promotes the animal's latest reading
	Observations string
}

// PromoteReadingResult reports the outcome of a companion attestation.
type PromoteReadingResult struct {
	Animal          Animal
	User            User
	Reading         Reading
	Control         Control
	AlreadyRecorded bool
}

// PromoteReading promotes an automated reading into a control attested by a
// named user. Only active animals qualify; the reading must be dated today in
// the deployment zone. A taken shift slot yields AlreadyRecorded with the
// existing control.
func (s *Service) PromoteReading(ctx context.Context, in PromoteReadingInput) (PromoteReadingResult, error) {
	var out PromoteReadingResult
	err := s.instrument(ctx, "promote_reading", func(ctx context.Context) error {
		if in.CollarID <= 0 {
			return domain.ValidationError{Field: "collar_id", Message: "must be a positive integer"}
		}
		if in.Username == "" {
			return domain.ValidationError{Field: "username", Message: "required"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			animal, ok := tx.FindAnimalByCollar(in.CollarID)
			if !ok || !animal.Active {
				return domain.ErrNotFound{Entity: domain.EntityAnimal, ID: fmt.Sprintf("collar %d", in.CollarID)}
			}
			user, ok := tx.FindUserByUsername(in.Username)
			if !ok || !user.Active {
				return domain.ErrNotFound{Entity: domain.EntityUser, ID: in.Username}
			}
			var reading Reading
			if in.ReadingID != "" {
				reading, ok = tx.FindReading(in.ReadingID)
				if !ok || reading.AnimalID != animal.ID {
					return domain.ErrNotFound{Entity: domain.EntityReading, ID: in.ReadingID}
				}
			} else {
				reading, ok = tx.LatestReading(animal.ID)
				if !ok {
					return domain.ErrNotFound{Entity: domain.EntityReading, ID: "latest for " + animal.ID}
				}
			}
			shift, date := domain.ResolveShift(reading.OccurredAt, s.loc)
			today := domain.DateOf(s.nowFn().In(s.loc))
			if date != today {
				return domain.ValidationError{Field: "reading", Message: fmt.Sprintf("dated %s, not today", date)}
			}
			readingID := reading.ID
			userID := user.ID
			control, created, err := tx.CreateControl(Control{
				AnimalID:        animal.ID,
				RecordingUserID: &userID,
				Date:            date,
				Shift:           shift,
				Temperature:     reading.Sample.Temperature,
				HeartRate:       reading.Sample.HeartRate,
				Observations:    in.Observations,
				ReadingID:       &readingID,
			})
			if err != nil {
				return err
			}
			out = PromoteReadingResult{
				Animal:          animal,
				User:            user,
				Reading:         reading,
				Control:         control,
				AlreadyRecorded: !created,
			}
			return nil
		})
		return err
	})
	if err != nil {
		return PromoteReadingResult{}, err
	}
	return out, nil
}

// ManualControlInput carries a hand-entered measurement from the companion
// app, taken without the collar, for an animal the user is standing next to.
type ManualControlInput struct {
	Username     string
	CollarID     int64
	Shift        Shift // optional; empty means the shift containing now
	Temperature  float64
	HeartRate    *int
	Observations string
	ActionTaken  string
}

// ManualControlResult reports the outcome of a manual entry.
type ManualControlResult struct {
	Animal          Animal
	User            User
	Reading         Reading
	Control         Control
	AlreadyRecorded bool
}

// RecordManualControl records a measurement a user entered by hand. The entry
// still flows through a reading so the telemetry trail stays complete, and it
// lands in today's ledger through the same insert-if-absent as every other
// path. An explicit shift targets an earlier window of the current day; days
// already past cannot be filled in.
func (s *Service) RecordManualControl(ctx context.Context, in ManualControlInput) (ManualControlResult, error) {
	var out ManualControlResult
	err := s.instrument(ctx, "record_manual_control", func(ctx context.Context) error {
		if in.CollarID <= 0 {
			return domain.ValidationError{Field: "collar_id", Message: "must be a positive integer"}
		}
		if in.Username == "" {
			return domain.ValidationError{Field: "username", Message: "required"}
		}
		sample, err := domain.NewSample(in.Temperature, in.HeartRate)
		if err != nil {
			return err
		}
		now := s.nowFn()
		today := domain.DateOf(now.In(s.loc))
		occurredAt := now
		shift := in.Shift
		if shift == "" {
			shift, _ = domain.ResolveShift(now, s.loc)
		} else {
			if _, err := domain.ParseShift(string(shift)); err != nil {
				return err
			}
			currentShift, _ := domain.ResolveShift(now, s.loc)
			if shift != currentShift {
				occurredAt = shift.Start(today, s.loc)
			}
		}
		_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			animal, ok := tx.FindAnimalByCollar(in.CollarID)
			if !ok || !animal.Active {
				return domain.ErrNotFound{Entity: domain.EntityAnimal, ID: fmt.Sprintf("collar %d", in.CollarID)}
			}
			user, ok := tx.FindUserByUsername(in.Username)
			if !ok || !user.Active {
				return domain.ErrNotFound{Entity: domain.EntityUser, ID: in.Username}
			}
			reading, err := tx.CreateReading(Reading{
				AnimalID:   animal.ID,
				Sample:     sample,
				OccurredAt: occurredAt,
				Source:     SourceManual,
			})
			if err != nil {
				return err
			}
			readingID := reading.ID
			userID := user.ID
			control, created, err := tx.CreateControl(Control{
				AnimalID:        animal.ID,
				RecordingUserID: &userID,
				Date:            today,
				Shift:           shift,
				Temperature:     sample.Temperature,
				HeartRate:       sample.HeartRate,
				Observations:    in.Observations,
				ActionTaken:     in.ActionTaken,
				ReadingID:       &readingID,
			})
			if err != nil {
				return err
			}
			out = ManualControlResult{
				Animal:          animal,
				User:            user,
				Reading:         reading,
				Control:         control,
				AlreadyRecorded: !created,
			}
			return nil
		})
		return err
	})
	if err != nil {
		return ManualControlResult{}, err
	}
	return out, nil
}

// ErrNotRecordingUser is returned when a control revision is attempted by
// anyone except the user who recorded the control.
type ErrNotRecordingUser struct {
	ControlID string
	UserID    string
}

func (e ErrNotRecordingUser) Error() string {
	return fmt.Sprintf("control %s is not recorded by user %s", e.ControlID, e.UserID)
}

// ControlRevision carries the fields a recording user may revise. Nil fields
// are left untouched.
type ControlRevision struct {
	Observations *string
	ActionTaken  *string
	Temperature  *float64
	HeartRate    *int
}

// ReviseControl applies an authenticated mutation to an existing control.
// Only the recording user may revise; the uniqueness key never changes and
// the health state is recomputed whenever the temperature is.
func (s *Service) ReviseControl(ctx context.Context, controlID, userID string, rev ControlRevision) (Control, error) {
	var out Control
	err := s.instrument(ctx, "revise_control", func(ctx context.Context) error {
		if rev.Temperature != nil && (*rev.Temperature < domain.TemperatureMin || *rev.Temperature > domain.TemperatureMax) {
			return domain.ValidationError{
				Field:   "temperature",
				Message: fmt.Sprintf("%.1f outside accepted range [%.1f, %.1f]", *rev.Temperature, domain.TemperatureMin, domain.TemperatureMax),
			}
		}
		if rev.HeartRate != nil && (*rev.HeartRate < domain.HeartRateMin || *rev.HeartRate > domain.HeartRateMax) {
			return domain.ValidationError{
				Field:   "heart_rate",
				Message: fmt.Sprintf("%d outside accepted range [%d, %d]", *rev.HeartRate, domain.HeartRateMin, domain.HeartRateMax),
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			updated, err := tx.UpdateControl(controlID, func(c *Control) error {
				if c.RecordingUserID == nil || *c.RecordingUserID != userID {
					return ErrNotRecordingUser{ControlID: controlID, UserID: userID}
				}
				if rev.Observations != nil {
					c.Observations = *rev.Observations
				}
				if rev.ActionTaken != nil {
					c.ActionTaken = *rev.ActionTaken
				}
				if rev.Temperature != nil {
					c.Temperature = *rev.Temperature
				}
				if rev.HeartRate != nil {
					c.HeartRate = *rev.HeartRate
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = updated
			return nil
		})
		return err
	})
	if err != nil {
		return Control{}, err
	}
	return out, nil
}

// SetAnimalActive flips an animal's active flag. Animals are never deleted.
func (s *Service) SetAnimalActive(ctx context.Context, animalID string, active bool) (Animal, error) {
	var out Animal
	err := s.instrument(ctx, "set_animal_active", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			updated, err := tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.Active = active
				return nil
			})
			if err != nil {
				return err
			}
			out = updated
			return nil
		})
		return err
	})
	if err != nil {
		return Animal{}, err
	}
	return out, nil
}

// RegisterUser seeds an attesting user. Account management proper lives
// outside this module; this exists for startup seeding and tests.
func (s *Service) RegisterUser(ctx context.Context, user User) (User, error) {
	var out User
	err := s.instrument(ctx, "register_user", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created, err := tx.CreateUser(user)
			if err != nil {
				return err
			}
			out = created
			return nil
		})
		return err
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// UserByUsername looks up an active attesting user.
func (s *Service) UserByUsername(ctx context.Context, username string) (User, error) {
	var out User
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		u, ok := v.FindUserByUsername(username)
		if !ok || !u.Active {
			return domain.ErrNotFound{Entity: domain.EntityUser, ID: username}
		}
		out = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// LatestReading returns the animal and its most recent reading for a collar.
func (s *Service) LatestReading(ctx context.Context, collarID int64) (Animal, Reading, error) {
	var animal Animal
	var reading Reading
	err := s.instrument(ctx, "latest_reading", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			a, ok := v.FindAnimalByCollar(collarID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityAnimal, ID: fmt.Sprintf("collar %d", collarID)}
			}
			r, ok := v.LatestReading(a.ID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityReading, ID: "latest for " + a.ID}
			}
			animal, reading = a, r
			return nil
		})
	})
	if err != nil {
		return Animal{}, Reading{}, err
	}
	return animal, reading, nil
}

// ControlsForDate lists the controls recorded on a calendar day, optionally
// narrowed to one collar.
func (s *Service) ControlsForDate(ctx context.Context, date CivilDate, collarID *int64) ([]Control, error) {
	var out []Control
	err := s.instrument(ctx, "controls_for_date", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			controls := v.ControlsOn(date)
			if collarID == nil {
				out = controls
				return nil
			}
			animal, ok := v.FindAnimalByCollar(*collarID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityAnimal, ID: fmt.Sprintf("collar %d", *collarID)}
			}
			for _, c := range controls {
				if c.AnimalID == animal.ID {
					out = append(out, c)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentShiftControl returns the control recorded for a collar in the shift
// containing now, if any.
func (s *Service) CurrentShiftControl(ctx context.Context, collarID int64) (Control, bool, error) {
	var out Control
	found := false
	err := s.instrument(ctx, "current_shift_control", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			animal, ok := v.FindAnimalByCollar(collarID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityAnimal, ID: fmt.Sprintf("collar %d", collarID)}
			}
			shift, date := domain.ResolveShift(s.nowFn(), s.loc)
			c, ok := v.FindControlByKey(ControlKey{AnimalID: animal.ID, Date: date, Shift: shift})
			if ok {
				out = c
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return Control{}, false, err
	}
	return out, found, nil
}
