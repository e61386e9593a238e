// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. Durable backends layer
// snapshot persistence on top of it.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"herdcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)
var _ domain.Transaction = (*Transaction)(nil)

type (
	// Animal aliases domain.Animal for in-memory persistence operations.
	Animal = domain.Animal
	// Reading aliases domain.Reading.
	Reading = domain.Reading
	// Control aliases domain.Control.
	Control = domain.Control
	// ControlKey aliases domain.ControlKey.
	ControlKey = domain.ControlKey
	// User aliases domain.User.
	User = domain.User
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing committed changes.
	Result = domain.Result
)

type memoryState struct {
	animals  map[string]Animal
	users    map[string]User
	readings map[string]Reading
	controls map[string]Control

	// secondary indexes, rebuilt on import
	byCollar   map[int64]string
	byUsername map[string]string
	byKey      map[ControlKey]string
}

// Snapshot captures a point-in-time clone of the store state. Only the
// primary buckets serialize; indexes are derived.
type Snapshot struct {
	Animals  map[string]Animal  `json:"animals"`
	Users    map[string]User    `json:"users"`
	Readings map[string]Reading `json:"readings"`
	Controls map[string]Control `json:"controls"`
}

func newMemoryState() memoryState {
	return memoryState{
		animals:    make(map[string]Animal),
		users:      make(map[string]User),
		readings:   make(map[string]Reading),
		controls:   make(map[string]Control),
		byCollar:   make(map[int64]string),
		byUsername: make(map[string]string),
		byKey:      make(map[ControlKey]string),
	}
}

func cloneAnimal(a Animal) Animal {
	cp := a
	if a.RadioAddress != nil {
		addr := *a.RadioAddress
		cp.RadioAddress = &addr
	}
	return cp
}

func cloneUser(u User) User { return u }

func cloneReading(r Reading) Reading { return r }

func cloneControl(c Control) Control {
	cp := c
	if c.RecordingUserID != nil {
		uid := *c.RecordingUserID
		cp.RecordingUserID = &uid
	}
	if c.ReadingID != nil {
		rid := *c.ReadingID
		cp.ReadingID = &rid
	}
	return cp
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.animals {
		cloned.animals[k] = cloneAnimal(v)
	}
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.readings {
		cloned.readings[k] = cloneReading(v)
	}
	for k, v := range s.controls {
		cloned.controls[k] = cloneControl(v)
	}
	for k, v := range s.byCollar {
		cloned.byCollar[k] = v
	}
	for k, v := range s.byUsername {
		cloned.byUsername[k] = v
	}
	for k, v := range s.byKey {
		cloned.byKey[k] = v
	}
	return cloned
}

// Store provides an in-memory transactional store for the herd domain. All
// mutations run under a single writer lock, which is what makes the control
// ledger's insert-if-absent check atomic with its insert.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	loc   *time.Location
	nowFn func() time.Time
}

// NewStore constructs an in-memory store. The location is the deployment's
// civil time zone, used for registration dates; nil defaults to UTC.
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		state: newMemoryState(),
		loc:   loc,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the store clock for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Location returns the store's civil time zone.
func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy commits atomically on success and is discarded on error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	s.state = tx.state
	return Result{Changes: tx.changes}, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(&view{state: &snapshot})
}

func (tx *Transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// ResolveAnimal finds or creates the animal for a collar. Existing animals
// get their display name and radio address reconciled last-writer-wins;
// collar id and active flag are never altered here.
func (tx *Transaction) ResolveAnimal(collarID int64, displayName string, radioAddress *string) (Animal, bool, error) {
	if id, ok := tx.state.byCollar[collarID]; ok {
		current := tx.state.animals[id]
		before := cloneAnimal(current)
		dirty := false
		if displayName != "" && displayName != current.DisplayName {
			current.DisplayName = displayName
			dirty = true
		}
		if radioAddress != nil && (current.RadioAddress == nil || *current.RadioAddress != *radioAddress) {
			addr := *radioAddress
			current.RadioAddress = &addr
			dirty = true
		}
		if !dirty {
			return cloneAnimal(current), false, nil
		}
		current.UpdatedAt = tx.now
		tx.state.animals[id] = cloneAnimal(current)
		tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionUpdate, Before: before, After: cloneAnimal(current)})
		return cloneAnimal(current), false, nil
	}

	animal := Animal{
		ID:           tx.store.newID(),
		CollarID:     collarID,
		DisplayName:  displayName,
		Active:       true,
		RegisteredAt: domain.DateOf(tx.now.In(tx.store.loc)),
		CreatedAt:    tx.now,
		UpdatedAt:    tx.now,
	}
	if radioAddress != nil {
		addr := *radioAddress
		animal.RadioAddress = &addr
	}
	tx.state.animals[animal.ID] = cloneAnimal(animal)
	tx.state.byCollar[collarID] = animal.ID
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionCreate, After: cloneAnimal(animal)})
	return cloneAnimal(animal), true, nil
}

// UpdateAnimal mutates an animal using the provided mutator. The collar id
// and creation timestamp are immutable.
func (tx *Transaction) UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error) {
	current, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, domain.ErrNotFound{Entity: domain.EntityAnimal, ID: id}
	}
	before := cloneAnimal(current)
	if err := mutator(&current); err != nil {
		return Animal{}, err
	}
	current.ID = id
	current.CollarID = before.CollarID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.animals[id] = cloneAnimal(current)
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionUpdate, Before: before, After: cloneAnimal(current)})
	return cloneAnimal(current), nil
}

// CreateUser stores a new attesting user. Usernames are unique.
func (tx *Transaction) CreateUser(u User) (User, error) {
	username := strings.TrimSpace(u.Username)
	if username == "" {
		return User{}, domain.ValidationError{Field: "username", Message: "required"}
	}
	if _, exists := tx.state.byUsername[username]; exists {
		return User{}, fmt.Errorf("user %q already exists", username)
	}
	u.Username = username
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	u.CreatedAt = tx.now
	tx.state.users[u.ID] = cloneUser(u)
	tx.state.byUsername[username] = u.ID
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// CreateReading appends a raw telemetry fact for an existing animal.
func (tx *Transaction) CreateReading(r Reading) (Reading, error) {
	if _, ok := tx.state.animals[r.AnimalID]; !ok {
		return Reading{}, domain.ErrNotFound{Entity: domain.EntityAnimal, ID: r.AnimalID}
	}
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = tx.now
	}
	r.CreatedAt = tx.now
	tx.state.readings[r.ID] = cloneReading(r)
	tx.recordChange(Change{Entity: domain.EntityReading, Action: domain.ActionCreate, After: cloneReading(r)})
	return cloneReading(r), nil
}

// CreateControl inserts a control if its uniqueness key is absent. The check
// and the insert commit as one unit under the store's writer lock; a racing
// caller observes the committed winner and gets (existing, false, nil).
func (tx *Transaction) CreateControl(c Control) (Control, bool, error) {
	key := c.Key()
	if key.AnimalID == "" || key.Date.IsZero() || key.Shift == "" {
		return Control{}, false, domain.ValidationError{Field: "control", Message: "animal, date, and shift are required"}
	}
	if id, exists := tx.state.byKey[key]; exists {
		return cloneControl(tx.state.controls[id]), false, nil
	}
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	c.HealthState = domain.ClassifyTemperature(c.Temperature)
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.controls[c.ID] = cloneControl(c)
	tx.state.byKey[key] = c.ID
	tx.recordChange(Change{Entity: domain.EntityControl, Action: domain.ActionCreate, After: cloneControl(c)})
	return cloneControl(c), true, nil
}

// UpdateControl mutates a control through the supplied mutator. The
// uniqueness key and provenance are immutable; the health state is always
// recomputed from the post-mutation temperature so the cached value never
// goes stale.
func (tx *Transaction) UpdateControl(id string, mutator func(*Control) error) (Control, error) {
	current, ok := tx.state.controls[id]
	if !ok {
		return Control{}, domain.ErrNotFound{Entity: domain.EntityControl, ID: id}
	}
	before := cloneControl(current)
	if err := mutator(&current); err != nil {
		return Control{}, err
	}
	current.ID = id
	current.AnimalID = before.AnimalID
	current.Date = before.Date
	current.Shift = before.Shift
	current.RecordingUserID = before.RecordingUserID
	current.ReadingID = before.ReadingID
	current.CreatedAt = before.CreatedAt
	current.HealthState = domain.ClassifyTemperature(current.Temperature)
	current.UpdatedAt = tx.now
	tx.state.controls[id] = cloneControl(current)
	tx.recordChange(Change{Entity: domain.EntityControl, Action: domain.ActionUpdate, Before: before, After: cloneControl(current)})
	return cloneControl(current), nil
}

// FindAnimalByCollar retrieves an animal by collar id from the transaction state.
func (tx *Transaction) FindAnimalByCollar(collarID int64) (Animal, bool) {
	return findAnimalByCollar(&tx.state, collarID)
}

// FindUserByUsername retrieves an attesting user by username.
func (tx *Transaction) FindUserByUsername(username string) (User, bool) {
	id, ok := tx.state.byUsername[strings.TrimSpace(username)]
	if !ok {
		return User{}, false
	}
	return cloneUser(tx.state.users[id]), true
}

// FindReading retrieves a reading by id.
func (tx *Transaction) FindReading(id string) (Reading, bool) {
	r, ok := tx.state.readings[id]
	if !ok {
		return Reading{}, false
	}
	return cloneReading(r), true
}

// LatestReading returns the most recent reading for an animal.
func (tx *Transaction) LatestReading(animalID string) (Reading, bool) {
	return latestReading(&tx.state, animalID)
}

// FindControlByKey retrieves a control by its uniqueness key.
func (tx *Transaction) FindControlByKey(key ControlKey) (Control, bool) {
	return findControlByKey(&tx.state, key)
}

type view struct {
	state *memoryState
}

func (v *view) ListAnimals() []Animal {
	out := make([]Animal, 0, len(v.state.animals))
	for _, a := range v.state.animals {
		out = append(out, cloneAnimal(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollarID < out[j].CollarID })
	return out
}

func (v *view) FindAnimal(id string) (Animal, bool) {
	a, ok := v.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

func (v *view) FindAnimalByCollar(collarID int64) (Animal, bool) {
	return findAnimalByCollar(v.state, collarID)
}

func (v *view) FindUserByUsername(username string) (User, bool) {
	id, ok := v.state.byUsername[strings.TrimSpace(username)]
	if !ok {
		return User{}, false
	}
	return v.state.users[id], true
}

func (v *view) LatestReading(animalID string) (Reading, bool) {
	return latestReading(v.state, animalID)
}

func (v *view) FindControl(id string) (Control, bool) {
	c, ok := v.state.controls[id]
	if !ok {
		return Control{}, false
	}
	return cloneControl(c), true
}

func (v *view) FindControlByKey(key ControlKey) (Control, bool) {
	return findControlByKey(v.state, key)
}

var shiftOrder = map[domain.Shift]int{
	domain.ShiftNight:     0,
	domain.ShiftMorning:   1,
	domain.ShiftAfternoon: 2,
	domain.ShiftEvening:   3,
}

func (v *view) ControlsOn(date domain.CivilDate) []Control {
	var out []Control
	for _, c := range v.state.controls {
		if c.Date == date {
			out = append(out, cloneControl(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AnimalID != out[j].AnimalID {
			return out[i].AnimalID < out[j].AnimalID
		}
		return shiftOrder[out[i].Shift] < shiftOrder[out[j].Shift]
	})
	return out
}

func findAnimalByCollar(state *memoryState, collarID int64) (Animal, bool) {
	id, ok := state.byCollar[collarID]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(state.animals[id]), true
}

func findControlByKey(state *memoryState, key ControlKey) (Control, bool) {
	id, ok := state.byKey[key]
	if !ok {
		return Control{}, false
	}
	return cloneControl(state.controls[id]), true
}

func latestReading(state *memoryState, animalID string) (Reading, bool) {
	var latest Reading
	found := false
	for _, r := range state.readings {
		if r.AnimalID != animalID {
			continue
		}
		if !found || r.OccurredAt.After(latest.OccurredAt) ||
			(r.OccurredAt.Equal(latest.OccurredAt) && r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
			found = true
		}
	}
	if !found {
		return Reading{}, false
	}
	return cloneReading(latest), true
}

// GetAnimal retrieves an animal by id.
func (s *Store) GetAnimal(id string) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

// GetAnimalByCollar retrieves an animal by collar id.
func (s *Store) GetAnimalByCollar(collarID int64) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findAnimalByCollar(&s.state, collarID)
}

// ListAnimals returns all animals ordered by collar id.
func (s *Store) ListAnimals() []Animal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Animal, 0, len(s.state.animals))
	for _, a := range s.state.animals {
		out = append(out, cloneAnimal(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollarID < out[j].CollarID })
	return out
}

// GetControl retrieves a control by id.
func (s *Store) GetControl(id string) (Control, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.controls[id]
	if !ok {
		return Control{}, false
	}
	return cloneControl(c), true
}

// ListControls returns all controls ordered by date, animal, then shift.
func (s *Store) ListControls() []Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Control, 0, len(s.state.controls))
	for _, c := range s.state.controls {
		out = append(out, cloneControl(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.String() < out[j].Date.String()
		}
		if out[i].AnimalID != out[j].AnimalID {
			return out[i].AnimalID < out[j].AnimalID
		}
		return shiftOrder[out[i].Shift] < shiftOrder[out[j].Shift]
	})
	return out
}

// ListReadings returns all readings ordered by occurrence time.
func (s *Store) ListReadings() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, len(s.state.readings))
	for _, r := range s.state.readings {
		out = append(out, cloneReading(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

// ExportState returns a serialisable snapshot of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := Snapshot{
		Animals:  make(map[string]Animal, len(s.state.animals)),
		Users:    make(map[string]User, len(s.state.users)),
		Readings: make(map[string]Reading, len(s.state.readings)),
		Controls: make(map[string]Control, len(s.state.controls)),
	}
	for k, v := range s.state.animals {
		snapshot.Animals[k] = cloneAnimal(v)
	}
	for k, v := range s.state.users {
		snapshot.Users[k] = cloneUser(v)
	}
	for k, v := range s.state.readings {
		snapshot.Readings[k] = cloneReading(v)
	}
	for k, v := range s.state.controls {
		snapshot.Controls[k] = cloneControl(v)
	}
	return snapshot
}

// ImportState replaces the store state from a snapshot, rebuilding the
// secondary indexes.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Animals {
		state.animals[k] = cloneAnimal(v)
		state.byCollar[v.CollarID] = k
	}
	for k, v := range snapshot.Users {
		state.users[k] = cloneUser(v)
		state.byUsername[v.Username] = k
	}
	for k, v := range snapshot.Readings {
		state.readings[k] = cloneReading(v)
	}
	for k, v := range snapshot.Controls {
		state.controls[k] = cloneControl(v)
		state.byKey[v.Key()] = k
	}
	s.state = state
}
