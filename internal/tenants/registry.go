package tenants

import (
	"fmt"
	"os"
	"sort"

	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/validator"

	"gopkg.in/yaml.v3"

	// Container images often ship without zoneinfo.
	_ "time/tzdata"
)

type file struct {
	Tenants []*Tenant `yaml:"tenants"`
}

// Registry is an immutable lookup of tenants by id and inbound number.
type Registry struct {
	byID    map[string]*Tenant
	byPhone map[string]*Tenant
}

// LoadFile reads and validates the tenant registry at path.
func LoadFile(path string, val *validator.Validator) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return Parse(data, val)
}

// Parse validates raw YAML and builds a registry.
func Parse(data []byte, val *validator.Validator) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file declares no tenants")
	}
	return NewRegistry(f.Tenants, val)
}

// NewRegistry validates tenants and indexes them.
func NewRegistry(list []*Tenant, val *validator.Validator) (*Registry, error) {
	if val == nil {
		val = validator.New()
	}
	reg := &Registry{
		byID:    make(map[string]*Tenant, len(list)),
		byPhone: make(map[string]*Tenant),
	}
	for _, t := range list {
		if err := val.Check(t); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", t.ID, err)
		}
		if err := t.prepare(); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", t.ID, err)
		}
		if _, dup := reg.byID[t.ID]; dup {
			return nil, fmt.Errorf("tenant %q declared twice", t.ID)
		}
		reg.byID[t.ID] = t
		for _, number := range t.PhoneNumbers {
			if other, dup := reg.byPhone[number]; dup {
				return nil, fmt.Errorf("number %s claimed by %q and %q", number, other.ID, t.ID)
			}
			reg.byPhone[number] = t
		}
	}
	return reg, nil
}

// Get returns the tenant with id.
func (r *Registry) Get(id string) (*Tenant, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("unknown tenant").WithOp("tenants.Get")
	}
	return t, nil
}

// ByPhoneNumber resolves the tenant owning an inbound number.
func (r *Registry) ByPhoneNumber(number string) (*Tenant, error) {
	t, ok := r.byPhone[number]
	if !ok {
		return nil, apperr.NotFound("no tenant owns this number").WithOp("tenants.ByPhoneNumber")
	}
	return t, nil
}

// IDs returns the registered tenant ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
