// Package tasks provides the static catalog of content briefs. The catalog is
// loaded once at process start and is read-only afterward.
package tasks

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/PedramNavid/styleval/internal/model"
)

//go:embed tasks.yaml
var embeddedCatalog []byte

// Catalog holds the loaded task definitions keyed by id.
type Catalog struct {
	byID  map[string]model.Task
	order []string
}

type catalogFile struct {
	Tasks []model.Task `yaml:"tasks"`
}

// Load reads the catalog from path, or from the embedded default definition
// when path is empty.
func Load(path string) (*Catalog, error) {
	raw := embeddedCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tasks: read %s", path)
		}
		raw = b
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrap(err, "tasks: parse catalog")
	}
	if len(file.Tasks) == 0 {
		return nil, eris.New("tasks: catalog is empty")
	}

	c := &Catalog{byID: make(map[string]model.Task, len(file.Tasks))}
	for _, t := range file.Tasks {
		if t.ID == "" {
			return nil, eris.New("tasks: task with empty id")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, eris.Errorf("tasks: duplicate task id %s", t.ID)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	sort.Strings(c.order)

	return c, nil
}

// Get returns the task with the given id.
func (c *Catalog) Get(id string) (model.Task, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// All returns every task in id order.
func (c *Catalog) All() []model.Task {
	out := make([]model.Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len returns the number of tasks in the catalog.
func (c *Catalog) Len() int {
	return len(c.byID)
}
