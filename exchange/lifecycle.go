package exchange

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/utils"
)

type Permission uint8

const (
	NoAccess Permission = iota
	ReadOnly
	WriteOnly
	ReadWrite
)

func (p Permission) String() string {
	switch p {
	case NoAccess:
		return "na"
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	case ReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("Permission(%d)", uint8(p))
	}
}

func (p Permission) Reads() bool  { return p == ReadOnly || p == ReadWrite }
func (p Permission) Writes() bool { return p == WriteOnly || p == ReadWrite }

// Permissions are the access rights of a task to the three sections of a
// field.
type Permissions struct {
	Exclusive, Shared, Ghost Permission
}

// Uniform gives every section the same permission.
func Uniform(p Permission) Permissions { return Permissions{p, p, p} }

func (ps Permissions) writes() bool {
	return ps.Exclusive.Writes() || ps.Shared.Writes() || ps.Ghost.Writes()
}

type State uint8

const (
	Unbound State = iota
	ReadPhase
	WritePhase
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case ReadPhase:
		return "read"
	case WritePhase:
		return "write"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type fieldState struct {
	f             *Field
	state         State
	ghostReadable bool
	exchanges     int
	broadcasts    int
}

// Lifecycle runs the task prolog and epilog of every registered field and
// decides when ghosts have to be refreshed. A ghost copy stays valid until a
// task writes the field, and it is refreshed by the next task reading
// ghosts. All ranks are expected to run the same tasks with the same
// permissions.
type Lifecycle struct {
	c      *comm.Comm
	halo   HaloExchange
	fields map[FieldID]*fieldState
	Log    zerolog.Logger
}

func NewLifecycle(c *comm.Comm, halo HaloExchange) *Lifecycle {
	return &Lifecycle{
		c:      c,
		halo:   halo,
		fields: make(map[FieldID]*fieldState),
		Log:    c.Log.With().Str("backend", halo.Backend().String()).Logger(),
	}
}

// Register hands f to the exchange backend. It is collective.
func (l *Lifecycle) Register(f *Field) error {
	if _, ok := l.fields[f.ID]; ok {
		return fmt.Errorf("%w: field %d registered twice", ErrField, f.ID)
	}
	if err := l.halo.Register(f); err != nil {
		return err
	}
	l.fields[f.ID] = &fieldState{f: f}
	return nil
}

func (l *Lifecycle) lookup(f *Field) (*fieldState, error) {
	fs, ok := l.fields[f.ID]
	if !ok || fs.f != f {
		return nil, fmt.Errorf("%w: field %d not registered", ErrField, f.ID)
	}
	return fs, nil
}

func (l *Lifecycle) logger(f *Field, op string) zerolog.Logger {
	return l.Log.With().
		Int("space", f.IndexSpace).
		Int("field", int(f.ID)).
		Str("name", f.Name).
		Str("op", op).
		Logger()
}

// Prolog readies f for a task with perms. Reading ghosts of a field written
// since the last exchange triggers an exchange. A failed exchange is fatal.
func (l *Lifecycle) Prolog(f *Field, perms Permissions) error {
	fs, err := l.lookup(f)
	if err != nil {
		return err
	}
	if perms.writes() {
		fs.state = WritePhase
	} else {
		fs.state = ReadPhase
	}
	if f.Kind == Global || !perms.Ghost.Reads() || fs.ghostReadable {
		return nil
	}
	logger := l.logger(f, "prolog")
	if err := l.halo.Exchange(f); err != nil {
		utils.Fatal(logger, err, "exchange")
	}
	fs.exchanges++
	fs.ghostReadable = true
	logger.Trace().Int("exchanges", fs.exchanges).Msg("ghosts refreshed")
	return nil
}

// Epilog invalidates the ghosts of f after a write and broadcasts written
// global fields from rank 0.
func (l *Lifecycle) Epilog(f *Field, perms Permissions) error {
	fs, err := l.lookup(f)
	if err != nil {
		return err
	}
	if f.Kind == Global {
		if perms.writes() {
			if err := l.halo.Broadcast(f); err != nil {
				utils.Fatal(l.logger(f, "epilog"), err, "broadcast")
			}
			fs.broadcasts++
		}
		return nil
	}
	if perms.writes() {
		fs.ghostReadable = false
	}
	return nil
}

// Run executes body between the prolog and epilog of f. The epilog runs only
// when body succeeds.
func (l *Lifecycle) Run(f *Field, perms Permissions, body func() error) error {
	if err := l.Prolog(f, perms); err != nil {
		return err
	}
	if err := body(); err != nil {
		return fmt.Errorf("task on field %d: %w", f.ID, err)
	}
	return l.Epilog(f, perms)
}

func (l *Lifecycle) State(f *Field) State {
	if fs, ok := l.fields[f.ID]; ok {
		return fs.state
	}
	return Unbound
}

// GhostReadable reports whether the ghosts of f are current.
func (l *Lifecycle) GhostReadable(f *Field) bool {
	fs, ok := l.fields[f.ID]
	return ok && fs.ghostReadable
}

// Exchanges returns the number of exchanges run for f.
func (l *Lifecycle) Exchanges(f *Field) int {
	if fs, ok := l.fields[f.ID]; ok {
		return fs.exchanges
	}
	return 0
}

func (l *Lifecycle) Broadcasts(f *Field) int {
	if fs, ok := l.fields[f.ID]; ok {
		return fs.broadcasts
	}
	return 0
}
