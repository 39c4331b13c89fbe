package model

import "time"

// Project is the tenant/scope boundary: one tracked brand, its competitor
// set, and the providers enabled for it. Projects are owned by the
// dashboard; the pipeline reads them as its source of truth.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BrandName string    `json:"brand_name"`
	Providers []string  `json:"providers,omitempty"` // empty = all configured providers
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Prompt is a tracked question issued to every provider for a project.
type Prompt struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Text           string     `json:"text"`
	Active         bool       `json:"active"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Competitor is a rival entity tracked alongside the project's brand.
type Competitor struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
}

// Entity pairs a tracked name with its type for extraction. Entities
// returns the project's brand plus the given competitors in scan order.
func Entities(p *Project, competitors []Competitor) []Entity {
	entities := make([]Entity, 0, len(competitors)+1)
	if p.BrandName != "" {
		entities = append(entities, Entity{Name: p.BrandName, Type: EntityBrand})
	}
	for _, c := range competitors {
		if c.Active {
			entities = append(entities, Entity{Name: c.Name, Type: EntityCompetitor})
		}
	}
	return entities
}

// Entity is a name the extraction engine scans for.
type Entity struct {
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}
