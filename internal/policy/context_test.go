package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pii"
)

func TestNewContext(t *testing.T) {
	t.Run("DefaultsWithoutStore", func(t *testing.T) {
		ctx := NewContext(nil, logger.Nop())

		if ctx.Level() != pii.LevelMedium {
			t.Errorf("Level() = %s, want medium", ctx.Level())
		}
		if ctx.Consent() {
			t.Error("consent should default to false")
		}
		for _, cat := range pii.Categories() {
			if !ctx.CategoryEnabled(cat) {
				t.Errorf("category %s should default to enabled", cat)
			}
		}
	})

	t.Run("DefaultsOnMissingFile", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "policy.json"))
		ctx := NewContext(store, logger.Nop())

		if ctx.Level() != pii.LevelMedium {
			t.Errorf("Level() = %s, want medium", ctx.Level())
		}
	})

	t.Run("DefaultsOnCorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}

		ctx := NewContext(NewFileStore(path), logger.Nop())
		if ctx.Level() != pii.LevelMedium {
			t.Errorf("Level() = %s, want medium fallback", ctx.Level())
		}
	})

	t.Run("RepairsPartialState", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.json")
		if err := os.WriteFile(path, []byte(`{"level":"draconian","categories":{"email":false}}`), 0o600); err != nil {
			t.Fatal(err)
		}

		ctx := NewContext(NewFileStore(path), logger.Nop())

		if ctx.Level() != pii.LevelMedium {
			t.Errorf("unknown level not repaired: %s", ctx.Level())
		}
		if ctx.CategoryEnabled(pii.CategoryEmail) {
			t.Error("persisted email toggle lost during repair")
		}
		if !ctx.CategoryEnabled(pii.CategoryPhone) {
			t.Error("missing category entry not backfilled to enabled")
		}
	})
}

func TestContextPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	store := NewFileStore(path)

	ctx := NewContext(store, logger.Nop())
	if err := ctx.SetLevel(pii.LevelHigh); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if err := ctx.ToggleCategory(pii.CategoryPostalCode); err != nil {
		t.Fatalf("ToggleCategory: %v", err)
	}
	ctx.SetConsent(true)

	// A fresh context over the same store sees the mutations
	restored := NewContext(store, logger.Nop())
	if restored.Level() != pii.LevelHigh {
		t.Errorf("restored Level() = %s, want high", restored.Level())
	}
	if restored.CategoryEnabled(pii.CategoryPostalCode) {
		t.Error("postal_code toggle did not survive restart")
	}
	if !restored.Consent() {
		t.Error("consent did not survive restart")
	}
}

func TestContextValidation(t *testing.T) {
	ctx := NewContext(nil, logger.Nop())

	t.Run("UnknownLevelRejected", func(t *testing.T) {
		err := ctx.SetLevel("atomic")
		if !errors.Is(err, pii.ErrUnknownLevel) {
			t.Errorf("SetLevel error = %v, want ErrUnknownLevel", err)
		}
		if ctx.Level() != pii.LevelMedium {
			t.Errorf("level changed after rejected update: %s", ctx.Level())
		}
	})

	t.Run("UnknownCategoryRejected", func(t *testing.T) {
		err := ctx.ToggleCategory("blood_type")
		if !errors.Is(err, pii.ErrUnknownCategory) {
			t.Errorf("ToggleCategory error = %v, want ErrUnknownCategory", err)
		}
	})

	t.Run("UnknownCategoryReportedDisabled", func(t *testing.T) {
		if ctx.CategoryEnabled("blood_type") {
			t.Error("unknown category reported enabled")
		}
	})
}

func TestResolveOptionsTracksLevel(t *testing.T) {
	ctx := NewContext(nil, logger.Nop())

	if err := ctx.SetLevel(pii.LevelMaximum); err != nil {
		t.Fatal(err)
	}

	opts, err := ctx.ResolveOptions()
	if err != nil {
		t.Fatalf("ResolveOptions: %v", err)
	}
	if opts.Strategy != pii.StrategyHash {
		t.Errorf("Strategy = %s, want hash", opts.Strategy)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := NewContext(nil, logger.Nop())

	snap := ctx.Snapshot()
	snap.Categories[pii.CategoryEmail] = false

	if !ctx.CategoryEnabled(pii.CategoryEmail) {
		t.Error("mutating a snapshot changed live state")
	}
}

func TestSaveFailureIsSilent(t *testing.T) {
	// A store that always fails must not surface errors through the API
	ctx := NewContext(failingStore{}, logger.Nop())

	if err := ctx.SetLevel(pii.LevelLow); err != nil {
		t.Errorf("SetLevel surfaced a persistence error: %v", err)
	}
	if ctx.Level() != pii.LevelLow {
		t.Errorf("in-memory change lost on persistence failure: %s", ctx.Level())
	}
}

type failingStore struct{}

func (failingStore) Load() (*State, error) { return nil, nil }
func (failingStore) Save(State) error      { return errors.New("disk full") }
