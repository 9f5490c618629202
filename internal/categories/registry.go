// Package categories manages the user's spending and income categories.
// Categories are referenced by name, and deleting one never touches the
// records that point at it.
package categories

import (
	"errors"
	"fmt"
	"strings"

	"finai/internal/core"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("category not found")
	ErrDuplicate = errors.New("category already exists")
)

// DefaultIcon is used when a category is added without one.
const DefaultIcon = "📦"

// Registry is not safe for concurrent use; the owning session serializes access.
type Registry struct {
	items []core.Category
}

// New wraps an existing slice. The registry owns it from then on.
func New(items []core.Category) *Registry {
	if items == nil {
		items = []core.Category{}
	}
	return &Registry{items: items}
}

func (r *Registry) List() []core.Category {
	return append([]core.Category(nil), r.items...)
}

// Add creates a category. A blank icon becomes DefaultIcon and a blank color
// takes the first palette color nobody uses yet.
func (r *Registry) Add(name, icon, color string) (core.Category, error) {
	c := core.Category{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Icon:  strings.TrimSpace(icon),
		Color: strings.TrimSpace(color),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if _, ok := r.find(c.Name); ok {
		return core.Category{}, fmt.Errorf("%w: %s", ErrDuplicate, c.Name)
	}
	if c.Icon == "" {
		c.Icon = DefaultIcon
	}
	if c.Color == "" {
		c.Color = r.nextColor()
	}
	r.items = append(r.items, c)
	return c, nil
}

func (r *Registry) Delete(id string) error {
	for i, c := range r.items {
		if c.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Lookup resolves a category by name, case-insensitively. Dangling names
// resolve to core.UnknownCategory.
func (r *Registry) Lookup(name string) core.Category {
	if c, ok := r.find(name); ok {
		return c
	}
	return core.UnknownCategory
}

func (r *Registry) find(name string) (core.Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range r.items {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

func (r *Registry) nextColor() string {
	used := make(map[string]bool, len(r.items))
	for _, c := range r.items {
		used[strings.ToUpper(c.Color)] = true
	}
	for _, color := range core.Palette {
		if !used[color] {
			return color
		}
	}
	return core.Palette[len(r.items)%len(core.Palette)]
}
