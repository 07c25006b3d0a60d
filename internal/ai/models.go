package ai

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
)

type Model struct {
	Id            string `json:"id" yaml:"id"`
	Label         string `json:"label" yaml:"label"`
	ApiIdentifier string `json:"apiIdentifier" yaml:"apiIdentifier"`
	Description   string `json:"description" yaml:"description"`
}

const DefaultModelId = "grok-2"

var defaultModels = []Model{
	{
		Id:            "grok-2",
		Label:         "HatchAI Light",
		ApiIdentifier: "grok-2",
		Description:   "Small model for fast, lightweight tasks",
	},
	{
		Id:            "grok-beta",
		Label:         "HatchAI Beta",
		ApiIdentifier: "grok-beta",
		Description:   "For complex, multi-step tasks",
	},
	{
		Id:            "grok-2-vision-1212",
		Label:         "HatchAI Vision",
		ApiIdentifier: "grok-2-vision-1212",
		Description:   "Work with images. Allowed: *.jpg and *.png",
	},
}

// Registry is the fixed set of models clients may select. It is built once
// at startup and never modified.
type Registry struct {
	models    []Model
	byId      map[string]Model
	defaultId string
}

func NewRegistry(models []Model, defaultId string) (*Registry, error) {
	if len(models) == 0 {
		return nil, errors.New("model registry is empty")
	}

	byId := make(map[string]Model, len(models))
	for _, m := range models {
		if m.Id == "" || m.ApiIdentifier == "" {
			return nil, fmt.Errorf("model '%s' must have an id and api identifier", m.Label)
		}
		if _, ok := byId[m.Id]; ok {
			return nil, fmt.Errorf("duplicate model id '%s'", m.Id)
		}
		byId[m.Id] = m
	}

	if defaultId == "" {
		defaultId = models[0].Id
	}
	if _, ok := byId[defaultId]; !ok {
		return nil, fmt.Errorf("default model '%s' is not in the registry", defaultId)
	}

	return &Registry{models: slices.Clone(models), byId: byId, defaultId: defaultId}, nil
}

func DefaultRegistry() *Registry {
	registry, err := NewRegistry(defaultModels, DefaultModelId)
	if err != nil {
		panic(err)
	}
	return registry
}

type registryFile struct {
	Default string  `yaml:"default"`
	Models  []Model `yaml:"models"`
}

// LoadRegistry reads a registry from a yaml file of the form
//
//	default: grok-2
//	models:
//	  - id: grok-2
//	    label: HatchAI Light
//	    apiIdentifier: grok-2
//	    description: ...
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model registry: %w", err)
	}

	var file registryFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing model registry '%s': %w", path, err)
	}

	return NewRegistry(file.Models, file.Default)
}

// Find looks up a model by exact id.
func (r *Registry) Find(id string) (Model, bool) {
	m, ok := r.byId[id]
	return m, ok
}

func (r *Registry) Models() []Model {
	return slices.Clone(r.models)
}

func (r *Registry) DefaultModelId() string {
	return r.defaultId
}
