package trace

// SampleRecord captures one sampling attempt.
type SampleRecord struct {
	Seq         int        `yaml:"seq"`
	Viable      bool       `yaml:"viable"`
	Flavor      int        `yaml:"flavor,omitempty"`
	Energy      float64    `yaml:"energy,omitempty"`
	RayOrigin   [3]float64 `yaml:"ray_origin,omitempty"`
	Vertex      [3]float64 `yaml:"vertex,omitempty"`
	RayToVertex float64    `yaml:"ray_to_vertex,omitempty"`
	TravelDist  float64    `yaml:"travel_dist,omitempty"`
}

// SpillRecord captures one declared spill boundary.
type SpillRecord struct {
	Index         int     `yaml:"index"`
	Events        int     `yaml:"events"`
	Exposure      float64 `yaml:"exposure"`
	TotalExposure float64 `yaml:"total_exposure"`
}
