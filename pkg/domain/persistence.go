package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Every mutation below commits or fails
// as one unit; in particular CreateControl's insert-if-absent check is only
// meaningful because it runs inside this scope.
type Transaction interface {
	// ResolveAnimal finds or creates the animal for a collar, reconciling the
	// mutable display name and radio address (last-writer-wins). The boolean
	// reports whether a new animal was created.
	ResolveAnimal(collarID int64, displayName string, radioAddress *string) (Animal, bool, error)
	// UpdateAnimal mutates an animal via the supplied mutator. CollarID is
	// immutable and restored if the mutator touches it.
	UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error)
	CreateUser(User) (User, error)
	CreateReading(Reading) (Reading, error)
	// CreateControl inserts a control if its (animal, date, shift) key is
	// absent. When the key is already taken it returns the existing control
	// and false; this is the expected concurrency outcome, not an error.
	CreateControl(Control) (Control, bool, error)
	// UpdateControl mutates observations, action, or measurements. The
	// uniqueness key is immutable; health state is recomputed from the
	// post-mutation temperature.
	UpdateControl(id string, mutator func(*Control) error) (Control, error)
	FindAnimalByCollar(collarID int64) (Animal, bool)
	FindUserByUsername(username string) (User, bool)
	FindReading(id string) (Reading, bool)
	// LatestReading returns the most recent reading for an animal by
	// occurrence time.
	LatestReading(animalID string) (Reading, bool)
	FindControlByKey(key ControlKey) (Control, bool)
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	ListAnimals() []Animal
	FindAnimal(id string) (Animal, bool)
	FindAnimalByCollar(collarID int64) (Animal, bool)
	FindUserByUsername(username string) (User, bool)
	LatestReading(animalID string) (Reading, bool)
	FindControl(id string) (Control, bool)
	FindControlByKey(key ControlKey) (Control, bool)
	// ControlsOn lists controls recorded for a calendar day, across all
	// animals, ordered by animal then shift.
	ControlsOn(date CivilDate) []Control
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAnimal(id string) (Animal, bool)
	GetAnimalByCollar(collarID int64) (Animal, bool)
	ListAnimals() []Animal
	GetControl(id string) (Control, bool)
	ListControls() []Control
	ListReadings() []Reading
}
