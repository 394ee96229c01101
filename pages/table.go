// Package pages holds the dashboard's page table and the views rendered for each page.
//
// The table maps every protected path to a view and the roles allowed to open it. It is
// data, not code: the gateway ships an embedded default and can load a replacement file.
package pages

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sevenitynet/reliefboard/guard"
	"github.com/sevenitynet/reliefboard/model"
)

//go:embed routes.yaml
var defaultTable []byte

// Entry is one protected page.
type Entry struct {
	Path  string       `json:"path"`
	Title string       `json:"title"`
	View  string       `json:"view"`
	Roles []model.Role `json:"roles,omitempty"`
}

// Allows reports whether role may open the page. A page without roles admits every
// authenticated user.
func (e Entry) Allows(role model.Role) bool {
	return len(e.Roles) == 0 || guard.Allows(e.Roles, role)
}

// NavItem is a sidebar link.
type NavItem struct {
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`
}

// NavSection is a sidebar group.
type NavSection struct {
	Title string    `json:"title" yaml:"title"`
	Path  string    `json:"path" yaml:"path"`
	Items []NavItem `json:"items,omitempty" yaml:"items"`
}

// Table is a validated page table.
type Table struct {
	entries    []Entry
	byPath     map[string]int
	navigation []NavSection
}

type rawEntry struct {
	Path  string   `yaml:"path"`
	Title string   `yaml:"title"`
	View  string   `yaml:"view"`
	Roles []string `yaml:"roles"`
}

type rawTable struct {
	Pages      []rawEntry   `yaml:"pages"`
	Navigation []NavSection `yaml:"navigation"`
}

// Load parses and validates a page table. Unknown fields, unknown views and unknown
// roles are errors, as are navigation links to pages missing from the table.
func Load(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw rawTable
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("pages: decode table: %w", err)
	}

	t := &Table{byPath: make(map[string]int, len(raw.Pages))}
	var errs []error

	for i, p := range raw.Pages {
		if !strings.HasPrefix(p.Path, "/") || p.Path == "/" || strings.Contains(p.Path, "?") {
			errs = append(errs, fmt.Errorf("page %d: invalid path %q", i, p.Path))
			continue
		}
		if _, dup := t.byPath[p.Path]; dup {
			errs = append(errs, fmt.Errorf("page %s: duplicate path", p.Path))
			continue
		}
		if _, ok := views[p.View]; !ok {
			errs = append(errs, fmt.Errorf("page %s: unknown view %q", p.Path, p.View))
			continue
		}

		roles, err := guard.ParseRoles(p.Roles)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", p.Path, err))
			continue
		}

		title := p.Title
		if title == "" {
			title = strings.TrimPrefix(p.Path, "/")
		}

		t.byPath[p.Path] = len(t.entries)
		t.entries = append(t.entries, Entry{Path: p.Path, Title: title, View: p.View, Roles: roles})
	}

	for _, s := range raw.Navigation {
		if _, ok := t.Lookup(s.Path); !ok {
			errs = append(errs, fmt.Errorf("navigation %q: no page for %s", s.Title, s.Path))
		}
		for _, item := range s.Items {
			if _, ok := t.Lookup(item.Path); !ok {
				errs = append(errs, fmt.Errorf("navigation %q: no page for %s", s.Title, item.Path))
			}
		}
	}
	t.navigation = raw.Navigation

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pages: invalid table: %w", err)
	}
	return t, nil
}

// LoadFile loads a page table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Default returns the embedded page table.
func Default() *Table {
	t, err := Load(bytes.NewReader(defaultTable))
	if err != nil {
		panic(err)
	}
	return t
}

// Entries returns the pages in table order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Lookup finds the page serving target. The query string is ignored.
func (t *Table) Lookup(target string) (Entry, bool) {
	path, _, _ := strings.Cut(target, "?")
	i, ok := t.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Navigation returns the sidebar as seen by role: links to pages the role cannot open
// are removed, and so are sections left without any link.
func (t *Table) Navigation(role model.Role) []NavSection {
	nav := make([]NavSection, 0, len(t.navigation))

	for _, s := range t.navigation {
		section := NavSection{Title: s.Title}
		for _, item := range s.Items {
			if t.allows(item.Path, role) {
				section.Items = append(section.Items, item)
			}
		}

		switch {
		case t.allows(s.Path, role):
			section.Path = s.Path
		case len(section.Items) > 0:
			section.Path = section.Items[0].Path
		default:
			continue
		}
		nav = append(nav, section)
	}

	return nav
}

func (t *Table) allows(target string, role model.Role) bool {
	e, ok := t.Lookup(target)
	return ok && e.Allows(role)
}
