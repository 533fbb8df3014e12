package app

import "strings"

type ModelCatalog struct {
	models       []string
	defaultModel string
}

func NewModelCatalog(models []string, defaultModel string) *ModelCatalog {
	kept := make([]string, 0, len(models))
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			kept = append(kept, m)
		}
	}
	if defaultModel == "" && len(kept) > 0 {
		defaultModel = kept[0]
	}
	return &ModelCatalog{models: kept, defaultModel: defaultModel}
}

// Resolve returns name when it is allow-listed, otherwise the default model.
func (c *ModelCatalog) Resolve(name string) string {
	name = strings.TrimSpace(name)
	for _, m := range c.models {
		if m == name {
			return m
		}
	}
	return c.defaultModel
}

func (c *ModelCatalog) List() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

func (c *ModelCatalog) Default() string {
	return c.defaultModel
}
