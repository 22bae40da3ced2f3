package policy

import (
	"fmt"
	"sync"

	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pii"
	"go.uber.org/zap"
)

// Context is the live session configuration governing masking: the
// privacy level, which categories are subject to masking on the
// context-aware path, and the consent flag. One logical instance per
// session; mutation is serialized by a mutex because callers may live
// on different goroutines.
type Context struct {
	mu     sync.Mutex
	state  State
	store  Store
	logger *logger.Logger
}

// NewContext loads persisted state from the store, falling back to
// defaults when nothing is persisted or the payload does not parse.
// The fallback is silent: a corrupt file must never surface an error
// to the caller.
func NewContext(store Store, log *logger.Logger) *Context {
	ctx := &Context{
		state:  DefaultState(),
		store:  store,
		logger: log,
	}

	if store == nil {
		return ctx
	}

	loaded, err := store.Load()
	switch {
	case err != nil:
		log.Debug("Persisted policy unusable, using defaults", zap.Error(err))
	case loaded == nil:
		log.Debug("No persisted policy, using defaults")
	default:
		ctx.state = normalize(*loaded)
		log.Info("Policy restored",
			zap.String("level", string(ctx.state.Level)),
			zap.Bool("consent", ctx.state.Consent),
		)
	}

	return ctx
}

// normalize repairs a loaded state so every catalog category has an
// entry and the level is recognized.
func normalize(state State) State {
	if !pii.ValidLevel(state.Level) {
		state.Level = pii.LevelMedium
	}
	if state.Categories == nil {
		state.Categories = make(map[pii.Category]bool)
	}
	for _, cat := range pii.Categories() {
		if _, ok := state.Categories[cat]; !ok {
			state.Categories[cat] = true
		}
	}
	return state
}

// Level returns the current privacy level.
func (c *Context) Level() pii.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Level
}

// SetLevel validates and applies a new privacy level, persisting the
// full state.
func (c *Context) SetLevel(level pii.Level) error {
	if !pii.ValidLevel(level) {
		return fmt.Errorf("%w: %q", pii.ErrUnknownLevel, level)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Level = level
	c.persist()
	return nil
}

// ResolveOptions maps the current level to its strategy preset.
func (c *Context) ResolveOptions() (pii.Options, error) {
	return pii.ResolveLevel(c.Level())
}

// CategoryEnabled reports whether a category is subject to masking on
// the context-aware path. Unknown categories are reported disabled.
func (c *Context) CategoryEnabled(cat pii.Category) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Categories[cat]
}

// ToggleCategory flips a category's enabled flag and persists.
func (c *Context) ToggleCategory(cat pii.Category) error {
	if !pii.ValidCategory(cat) {
		return fmt.Errorf("%w: %q", pii.ErrUnknownCategory, cat)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Categories[cat] = !c.state.Categories[cat]
	c.persist()
	return nil
}

// Consent returns the consent flag.
func (c *Context) Consent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Consent
}

// SetConsent applies the consent flag and persists.
func (c *Context) SetConsent(consent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Consent = consent
	c.persist()
}

// Snapshot returns a copy of the current state for read-only callers.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	categories := make(map[pii.Category]bool, len(c.state.Categories))
	for cat, enabled := range c.state.Categories {
		categories[cat] = enabled
	}
	return State{
		Level:      c.state.Level,
		Categories: categories,
		Consent:    c.state.Consent,
	}
}

// persist writes the full state through the store. A failed write is a
// silent degradation: the in-memory change stands, the next session
// simply starts from older state. Callers hold c.mu.
func (c *Context) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.state); err != nil {
		c.logger.Warn("Failed to persist policy state", zap.Error(err))
	}
}
