package workflow

// LaneHealth summarizes the readiness of a pipeline lane.
type LaneHealth struct {
	Name   string
	Ready  bool
	Detail string
}

// HealthyLane constructs a ready LaneHealth record.
func HealthyLane(name string) LaneHealth {
	return LaneHealth{Name: name, Ready: true}
}

// UnhealthyLane constructs an unhealthy LaneHealth record with context detail.
func UnhealthyLane(name, detail string) LaneHealth {
	return LaneHealth{Name: name, Ready: false, Detail: detail}
}
