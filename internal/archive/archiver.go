package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"herdcore/pkg/domain"
)

// Archiver writes immutable daily ledger documents to an archive Store. One
// document per calendar day, keyed controls/<date>.json, containing every
// control recorded for that day joined with its animal's identity.
type Archiver struct {
	objects Store
	source  domain.PersistentStore
	nowFn   func() time.Time
}

// NewArchiver builds an archiver over the given object store and ledger
// source.
func NewArchiver(objects Store, source domain.PersistentStore) *Archiver {
	return &Archiver{objects: objects, source: source, nowFn: time.Now}
}

// SetNowFunc overrides the clock used for the generated_at stamp. Test hook.
func (a *Archiver) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		a.nowFn = fn
	}
}

// DayDocument is the archived ledger document for one calendar day.
type DayDocument struct {
	Date        domain.CivilDate  `json:"date"`
	GeneratedAt time.Time         `json:"generated_at"`
	Controls    []ArchivedControl `json:"controls"`
}

// ArchivedControl is a control joined with its animal's identity, denormalized
// so the document is readable without the live store.
type ArchivedControl struct {
	ID           string             `json:"id"`
	AnimalID     string             `json:"animal_id"`
	CollarID     int64              `json:"collar_id"`
	DisplayName  string             `json:"display_name"`
	Shift        domain.Shift       `json:"shift"`
	Temperature  float64            `json:"temperature"`
	HeartRate    int                `json:"heart_rate"`
	HealthState  domain.HealthState `json:"health_state"`
	Observations string             `json:"observations,omitempty"`
	ActionTaken  string             `json:"action_taken,omitempty"`
	RecordedBy   *string            `json:"recorded_by,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// KeyFor returns the archive object key for a calendar day.
func KeyFor(date domain.CivilDate) string {
	return fmt.Sprintf("controls/%s.json", date)
}

// ArchiveDay writes the ledger document for date if it has not been archived
// yet. Returns the object info and whether a new document was written; an
// already-archived day is reported with false, not an error.
func (a *Archiver) ArchiveDay(ctx context.Context, date domain.CivilDate) (Info, bool, error) {
	key := KeyFor(date)
	if info, err := a.objects.Head(ctx, key); err == nil {
		return info, false, nil
	}

	doc := DayDocument{Date: date, GeneratedAt: a.nowFn().UTC()}
	err := a.source.View(ctx, func(view domain.TransactionView) error {
		for _, control := range view.ControlsOn(date) {
			entry := ArchivedControl{
				ID:           control.ID,
				AnimalID:     control.AnimalID,
				Shift:        control.Shift,
				Temperature:  control.Temperature,
				HeartRate:    control.HeartRate,
				HealthState:  control.HealthState,
				Observations: control.Observations,
				ActionTaken:  control.ActionTaken,
				RecordedBy:   control.RecordingUserID,
				CreatedAt:    control.CreatedAt,
			}
			if animal, ok := view.FindAnimal(control.AnimalID); ok {
				entry.CollarID = animal.CollarID
				entry.DisplayName = animal.DisplayName
			}
			doc.Controls = append(doc.Controls, entry)
		}
		return nil
	})
	if err != nil {
		return Info{}, false, err
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Info{}, false, err
	}
	info, err := a.objects.Put(ctx, key, bytes.NewReader(payload), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"date": date.String(), "controls": fmt.Sprintf("%d", len(doc.Controls))},
	})
	if err != nil {
		// A concurrent archiver may have won the create; report its document.
		if existing, headErr := a.objects.Head(ctx, key); headErr == nil {
			return existing, false, nil
		}
		return Info{}, false, err
	}
	return info, true, nil
}

// ArchivedDays lists the calendar days already archived, by object key order.
func (a *Archiver) ArchivedDays(ctx context.Context) ([]Info, error) {
	return a.objects.List(ctx, "controls/")
}
