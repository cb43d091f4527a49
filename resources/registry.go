package resources

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cursor"
	"github.com/padm/dwh/models"
)

const registryFile = "resources.yaml"

//go:embed resources.yaml sql/bronze/*.sql
var embedded embed.FS

type cursorDefinition struct {
	Column       string      `yaml:"column"`
	Kind         cursor.Kind `yaml:"kind"`
	InitialValue string      `yaml:"initialValue"`
}

type identityDefinition struct {
	Policy constants.RowIdentityPolicy `yaml:"policy"`
	Fields []string                    `yaml:"fields"`
}

type resourceDefinition struct {
	Name              string              `yaml:"name"`
	Query             string              `yaml:"query"`
	QueryFile         string              `yaml:"queryFile"`
	FallbackQuery     string              `yaml:"fallbackQuery"`
	FallbackQueryFile string              `yaml:"fallbackQueryFile"`
	WriteMode         constants.WriteMode `yaml:"writeMode"`
	Cursor            *cursorDefinition   `yaml:"cursor"`
	Identity          identityDefinition  `yaml:"identity"`
	// ColumnTypeOverrides is column name -> kind, see [models.ParseColumnKind].
	ColumnTypeOverrides map[string]string `yaml:"columnTypeOverrides"`
}

type registryDefinition struct {
	Resources []resourceDefinition `yaml:"resources"`
}

// Registry is the ordered, read-only set of resources the pipeline knows how to extract.
type Registry struct {
	resources []models.ResourceDescriptor
}

// Load reads the registry from [path], with query files relative to it. An empty [path] loads the registry that
// ships with the binary.
func Load(path string) (*Registry, error) {
	if path == "" {
		return load(embedded, registryFile)
	}

	return load(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

func load(fsys fs.FS, name string) (*Registry, error) {
	bytes, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %q: %w", name, err)
	}

	var definition registryDefinition
	if err = yaml.Unmarshal(bytes, &definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry %q: %w", name, err)
	}

	if len(definition.Resources) == 0 {
		return nil, fmt.Errorf("registry %q has no resources", name)
	}

	registry := &Registry{}
	for _, resourceDef := range definition.Resources {
		resource, err := resourceDef.toDescriptor(fsys)
		if err != nil {
			return nil, err
		}

		if _, ok := registry.Get(resource.Name); ok {
			return nil, fmt.Errorf("resource %q is defined more than once", resource.Name)
		}

		if err = resource.Validate(); err != nil {
			return nil, err
		}

		registry.resources = append(registry.resources, resource)
	}

	return registry, nil
}

func readQuery(fsys fs.FS, inline, file string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("both an inline query and a query file are set")
	}

	if file == "" {
		return strings.TrimSpace(inline), nil
	}

	bytes, err := fs.ReadFile(fsys, file)
	if err != nil {
		return "", fmt.Errorf("failed to read query file: %w", err)
	}

	return strings.TrimSpace(string(bytes)), nil
}

func (r resourceDefinition) toDescriptor(fsys fs.FS) (models.ResourceDescriptor, error) {
	query, err := readQuery(fsys, r.Query, r.QueryFile)
	if err != nil {
		return models.ResourceDescriptor{}, fmt.Errorf("resource %q: %w", r.Name, err)
	}

	fallbackQuery, err := readQuery(fsys, r.FallbackQuery, r.FallbackQueryFile)
	if err != nil {
		return models.ResourceDescriptor{}, fmt.Errorf("resource %q fallback: %w", r.Name, err)
	}

	identity := models.Identity{Policy: r.Identity.Policy, Fields: r.Identity.Fields}
	if identity.Policy == "" {
		identity.Policy = constants.NoIdentity
	}

	descriptor := models.ResourceDescriptor{
		Name:          r.Name,
		BaseQuery:     query,
		FallbackQuery: fallbackQuery,
		WriteMode:     r.WriteMode,
		Identity:      identity,
	}

	if r.Cursor != nil {
		descriptor.Cursor = &models.Cursor{Column: r.Cursor.Column, Kind: r.Cursor.Kind}
		if r.Cursor.InitialValue != "" {
			initialValue, err := cursor.Decode(r.Cursor.Kind, r.Cursor.InitialValue)
			if err != nil {
				return models.ResourceDescriptor{}, fmt.Errorf("resource %q has an invalid initial checkpoint: %w", r.Name, err)
			}
			descriptor.Cursor.InitialValue = initialValue
		}
	}

	if len(r.ColumnTypeOverrides) > 0 {
		descriptor.ColumnTypeOverrides = make(map[string]models.ColumnKind, len(r.ColumnTypeOverrides))
		for column, value := range r.ColumnTypeOverrides {
			kind, err := models.ParseColumnKind(value)
			if err != nil {
				return models.ResourceDescriptor{}, fmt.Errorf("resource %q has an invalid type override for %q: %w", r.Name, column, err)
			}
			descriptor.ColumnTypeOverrides[column] = kind
		}
	}

	return descriptor, nil
}

func (r *Registry) All() []models.ResourceDescriptor {
	return slices.Clone(r.resources)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.resources))
	for i, resource := range r.resources {
		names[i] = resource.Name
	}
	return names
}

func (r *Registry) Get(name string) (models.ResourceDescriptor, bool) {
	idx := slices.IndexFunc(r.resources, func(resource models.ResourceDescriptor) bool { return resource.Name == name })
	if idx < 0 {
		return models.ResourceDescriptor{}, false
	}
	return r.resources[idx], true
}

// Select returns the resources named in [names], in that order, or every resource when [names] is empty. Resources
// named in [exclude] are left out either way.
func (r *Registry) Select(names, exclude []string) ([]models.ResourceDescriptor, error) {
	if len(names) == 0 {
		names = r.Names()
	}

	var selected []models.ResourceDescriptor
	var unknown []string
	for _, name := range exclude {
		if _, ok := r.Get(name); !ok {
			unknown = append(unknown, name)
		}
	}

	for _, name := range names {
		resource, ok := r.Get(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}

		if slices.Contains(exclude, name) {
			continue
		}

		if !slices.ContainsFunc(selected, func(s models.ResourceDescriptor) bool { return s.Name == name }) {
			selected = append(selected, resource)
		}
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown resources %v, valid resources: %s", unknown, strings.Join(r.Names(), ", "))
	}

	return selected, nil
}
