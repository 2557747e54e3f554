package common

// Entity types known at build time. The data model treats the type as a
// closed set even though it is stored as a plain string.
const (
	EntityTypePerson       = "person"
	EntityTypeOrganization = "organization"
)

// Dataset is the immutable pair of collections a viewer session works on,
// plus the metadata summary shown in the banner.
//
// A dataset is loaded once and never mutated afterwards. Every consumer
// receives the same pointer and must treat the slices as read-only.
type Dataset struct {
	Name          string         `json:"name"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Metadata      Metadata       `json:"metadata"`
}

// Entity represents a node in the relationship graph: a person or an
// organization with a short role description and a list of key facts.
//
// ConnectionCount is supplied with the data and only drives visual sizing.
// It is not derived from the relationships and may drift from the true degree.
type Entity struct {
	ID              string   `json:"id" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	Type            string   `json:"type" validate:"required"`
	Title           string   `json:"title"`
	ConnectionCount int      `json:"connectionCount" validate:"gte=0"`
	KeyFacts        []string `json:"keyFacts"`
}

// Relationship represents a directed, typed edge between two entities.
// The source "acts upon" the target. Strength drives both the rendered edge
// width and the rest length of the layout spring.
type Relationship struct {
	Source      string  `json:"source" validate:"required"`
	Target      string  `json:"target" validate:"required"`
	Type        string  `json:"type" validate:"required"`
	Description string  `json:"description"`
	Strength    float64 `json:"strength" validate:"gt=0"`
	DateRange   string  `json:"dateRange"`
}

// Metadata is the summary object shipped next to the data files. It is used
// for the display banner only and never consumed by the graph algorithms.
type Metadata struct {
	Statistics Statistics `json:"statistics"`
}

// Statistics holds the counts rendered in the banner.
type Statistics struct {
	TotalEntities         int            `json:"totalEntities"`
	EntityBreakdown       map[string]int `json:"entityBreakdown"`
	TotalRelationships    int            `json:"totalRelationships"`
	RelationshipBreakdown map[string]int `json:"relationshipBreakdown"`
}

// EntityIndex maps entity ids to their position in a slice.
func EntityIndex(entities []Entity) map[string]int {
	idx := make(map[string]int, len(entities))
	for i := range entities {
		idx[entities[i].ID] = i
	}
	return idx
}
