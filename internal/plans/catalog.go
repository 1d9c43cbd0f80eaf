package plans

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tutor/internal/domain"
)

// Catalog is the immutable set of plans known to the service.
type Catalog struct {
	plans     map[string]domain.Plan
	order     []string
	defaultID string
}

type catalogFile struct {
	Default string        `yaml:"default"`
	Plans   []domain.Plan `yaml:"plans"`
}

// Defaults returns the built-in catalog used when no file is configured.
func Defaults() []domain.Plan {
	return []domain.Plan{
		{ID: "free", Name: "Free", Limit: domain.IntPtr(10), Interval: domain.IntervalDaily, Currency: "USD"},
		{ID: "sprint", Name: "Exam Sprint", Limit: domain.IntPtr(30), Interval: domain.IntervalHourly, Currency: "USD", PriceCents: 299},
		{ID: "pro", Name: "Pro", Limit: domain.IntPtr(500), Interval: domain.IntervalMonthly, Currency: "USD", PriceCents: 999},
		{ID: "annual", Name: "Pro Annual", Limit: domain.IntPtr(7000), Interval: domain.IntervalYearly, Currency: "USD", PriceCents: 9900},
		{ID: "unlimited", Name: "Unlimited", Limit: nil, Interval: domain.IntervalMonthly, Currency: "USD", PriceCents: 2499},
		{ID: "trial", Name: "Trial", Limit: domain.IntPtr(5), Interval: domain.IntervalLifetime, Currency: "USD"},
	}
}

// NewCatalog validates the plans and indexes them by id. defaultID names the
// plan applied to principals without a plan claim; it may be empty.
func NewCatalog(plans []domain.Plan, defaultID string) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("plans: catalog is empty")
	}
	c := &Catalog{plans: make(map[string]domain.Plan, len(plans))}
	for _, p := range plans {
		p.ID = strings.TrimSpace(strings.ToLower(p.ID))
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plans: %w", err)
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("plans: duplicate plan %q", p.ID)
		}
		if p.Limit != nil {
			limit := *p.Limit
			p.Limit = &limit
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	defaultID = strings.TrimSpace(strings.ToLower(defaultID))
	if defaultID != "" {
		if _, ok := c.plans[defaultID]; !ok {
			return nil, fmt.Errorf("plans: default plan %q is not in the catalog", defaultID)
		}
	}
	c.defaultID = defaultID
	return c, nil
}

// LoadFile reads a YAML catalog. An empty path yields the built-in defaults.
func LoadFile(path, defaultID string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return NewCatalog(Defaults(), defaultID)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plans: read catalog: %w", err)
	}
	return Parse(raw, defaultID)
}

// Parse decodes a YAML catalog document. defaultID overrides the document's
// default when set.
func Parse(raw []byte, defaultID string) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("plans: decode catalog: %w", err)
	}
	if strings.TrimSpace(defaultID) == "" {
		defaultID = file.Default
	}
	return NewCatalog(file.Plans, defaultID)
}

// Lookup returns the plan with the given id. An empty id resolves to the
// default plan. Unknown ids are configuration errors.
func (c *Catalog) Lookup(id string) (domain.Plan, error) {
	key := strings.TrimSpace(strings.ToLower(id))
	if key == "" {
		key = c.defaultID
	}
	p, ok := c.plans[key]
	if !ok {
		return domain.Plan{}, domain.ConfigurationError(fmt.Sprintf("plan %q is not configured", id), domain.ErrUnsupportedPlan)
	}
	return p, nil
}

// List returns the plans in catalog order.
func (c *Catalog) List() []domain.Plan {
	out := make([]domain.Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// DefaultID returns the id of the plan used when a principal carries none.
func (c *Catalog) DefaultID() string {
	return c.defaultID
}
