package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bnema/radialmx/internal/logger"
)

// SchemaVersion is written to new profile files.
const SchemaVersion = 1

// File is the on-disk layout of profiles.toml.
type File struct {
	SchemaVersion int     `toml:"schema_version"`
	Profiles      []Entry `toml:"profiles"`
}

// Entry is one [[profiles]] table. Slices may hold any count; loading pads
// or truncates to SliceCount.
type Entry struct {
	Name        string        `toml:"name"`
	WindowClass string        `toml:"window_class,omitempty"`
	Icon        string        `toml:"icon,omitempty"`
	Description string        `toml:"description,omitempty"`
	Slices      []SliceAction `toml:"slices"`
	Center      *SliceAction  `toml:"center,omitempty"`
}

// Table is an immutable set of profiles indexed by name and window class.
type Table struct {
	byName  map[string]Profile
	byClass map[string]string
	names   []string
}

// NewTable indexes profiles and adds the builtin default when no profile is
// named "default". Later duplicates of a name or class win.
func NewTable(profiles []Profile) *Table {
	t := &Table{
		byName:  make(map[string]Profile, len(profiles)+1),
		byClass: make(map[string]string),
	}
	for _, p := range profiles {
		if _, dup := t.byName[p.Name]; !dup {
			t.names = append(t.names, p.Name)
		}
		t.byName[p.Name] = p
		if p.WindowClass != "" {
			t.byClass[strings.ToLower(p.WindowClass)] = p.Name
		}
	}
	if _, ok := t.byName[DefaultName]; !ok {
		t.byName[DefaultName] = Builtin()
		t.names = append(t.names, DefaultName)
	}
	return t
}

// Lookup matches a window class case-insensitively.
func (t *Table) Lookup(class string) (Profile, bool) {
	name, ok := t.byClass[strings.ToLower(strings.TrimSpace(class))]
	if !ok {
		return Profile{}, false
	}
	p, ok := t.byName[name]
	return p, ok
}

// Get returns a profile by name.
func (t *Table) Get(name string) (Profile, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Default returns the profile named "default".
func (t *Table) Default() Profile {
	return t.byName[DefaultName]
}

// Profiles lists profiles in file order, the default last when it was added.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, t.byName[n])
	}
	return out
}

// Classes lists the window classes with a dedicated profile.
func (t *Table) Classes() []string {
	out := make([]string, 0, len(t.byClass))
	for c := range t.byClass {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Issue is a non-fatal problem found while loading.
type Issue struct {
	Profile string
	Slice   int // -1 for the profile itself, SliceCount for the center
	Problem string
}

func (i Issue) String() string {
	switch {
	case i.Slice < 0:
		return fmt.Sprintf("profile %q: %s", i.Profile, i.Problem)
	case i.Slice == SliceCount:
		return fmt.Sprintf("profile %q center: %s", i.Profile, i.Problem)
	default:
		return fmt.Sprintf("profile %q slice %d: %s", i.Profile, i.Slice, i.Problem)
	}
}

// Decode parses a profile file. Invalid actions are replaced by None and
// reported as issues; only syntax errors fail.
func Decode(data []byte) ([]Profile, []Issue, error) {
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, nil, fmt.Errorf("parse profiles: %w", err)
	}

	var issues []Issue
	if f.SchemaVersion != SchemaVersion {
		issues = append(issues, Issue{Slice: -1, Problem: fmt.Sprintf("schema_version %d, expected %d", f.SchemaVersion, SchemaVersion)})
	}

	profiles := make([]Profile, 0, len(f.Profiles))
	for _, e := range f.Profiles {
		if strings.TrimSpace(e.Name) == "" {
			issues = append(issues, Issue{Slice: -1, Problem: "profile without name skipped"})
			continue
		}
		p, found := fromEntry(e)
		issues = append(issues, found...)
		profiles = append(profiles, p)
	}
	return profiles, issues, nil
}

func fromEntry(e Entry) (Profile, []Issue) {
	var issues []Issue
	p := Profile{
		Name:        e.Name,
		WindowClass: strings.ToLower(strings.TrimSpace(e.WindowClass)),
		Icon:        e.Icon,
		Description: e.Description,
	}

	if n := len(e.Slices); n != SliceCount {
		issues = append(issues, Issue{Profile: e.Name, Slice: -1, Problem: fmt.Sprintf("has %d slices, using %d", n, SliceCount)})
	}
	for i := range p.Slices {
		p.Slices[i] = None()
		if i < len(e.Slices) {
			p.Slices[i] = checked(e.Name, i, e.Slices[i], &issues)
		}
	}
	if e.Center != nil {
		c := checked(e.Name, SliceCount, *e.Center, &issues)
		if !c.IsNone() {
			p.Center = &c
		}
	}
	if p.Icon != "" && !ValidIcon(p.Icon) {
		issues = append(issues, Issue{Profile: e.Name, Slice: -1, Problem: fmt.Sprintf("icon %q may not render", p.Icon)})
	}
	return p, issues
}

func checked(profile string, idx int, a SliceAction, issues *[]Issue) SliceAction {
	if a.Kind == "" {
		a.Kind = KindNone
	}
	if err := a.Validate(); err != nil {
		*issues = append(*issues, Issue{Profile: profile, Slice: idx, Problem: err.Error()})
		return None()
	}
	if a.Icon != "" && !ValidIcon(a.Icon) {
		*issues = append(*issues, Issue{Profile: profile, Slice: idx, Problem: fmt.Sprintf("icon %q may not render", a.Icon)})
	}
	return a
}

// Encode renders profiles as TOML.
func Encode(profiles []Profile) ([]byte, error) {
	f := File{SchemaVersion: SchemaVersion}
	for _, p := range profiles {
		e := Entry{
			Name:        p.Name,
			WindowClass: p.WindowClass,
			Icon:        p.Icon,
			Description: p.Description,
			Slices:      append([]SliceAction(nil), p.Slices[:]...),
			Center:      p.Center,
		}
		f.Profiles = append(f.Profiles, e)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads a profile file and logs its issues.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	profiles, issues, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, is := range issues {
		logger.Warnf("profiles: %s", is)
	}
	t := NewTable(profiles)
	logger.Infof("profiles: loaded %d profiles from %s", len(t.names), path)
	return t, nil
}

// LoadOrCreate loads path, writing the builtin default first when the file
// does not exist.
func LoadOrCreate(path string) (*Table, error) {
	t, err := Load(path)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := Save(path, []Profile{Builtin()}); err != nil {
		return nil, err
	}
	logger.Infof("profiles: created %s", path)
	return NewTable(nil), nil
}

// Save writes profiles atomically.
func Save(path string, profiles []Profile) error {
	data, err := Encode(profiles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profiles-*.toml")
	if err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}
