package entity

// Platform identifies the code-hosting service a jurisdiction publishes on.
type Platform string

const (
	PlatformMunicode      Platform = "municode"
	PlatformAmericanLegal Platform = "american_legal"
	PlatformGeneralCode   Platform = "general_code"
	PlatformGeneric       Platform = "generic"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformMunicode, PlatformAmericanLegal, PlatformGeneralCode, PlatformGeneric:
		return true
	}
	return false
}

// Location mirrors the `locations` PostgreSQL table schema.
// ID is the stable external identifier from the seed feed (GNIS).
type Location struct {
	ID       string   `json:"id" validate:"required,max=64"`
	Name     string   `json:"name" validate:"required"`
	State    string   `json:"state" validate:"required,len=2,alpha"`
	Platform Platform `json:"platform" validate:"required,platform"`
	Domains  []string `json:"domains,omitempty" validate:"dive,hostname"`
	SeedURLs []string `json:"seed_urls,omitempty" validate:"dive,url"`
}

// Platforms returns the platforms a unit for this location is searched on.
func (l *Location) Platforms() []Platform {
	if l.Platform == "" {
		return []Platform{PlatformGeneric}
	}
	return []Platform{l.Platform}
}

// Datapoint mirrors the `datapoints` PostgreSQL table schema.
type Datapoint struct {
	ID       string   `json:"id" yaml:"id" validate:"required,max=64"`
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms"`
}

// UnitKey names one (Location, Datapoint) unit of pipeline work.
type UnitKey struct {
	LocationID  string `json:"location_id"`
	DatapointID string `json:"datapoint_id"`
}

func (k UnitKey) String() string {
	return k.LocationID + "/" + k.DatapointID
}
