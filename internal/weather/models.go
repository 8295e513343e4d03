package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Coordinate is a latitude or longitude kept in the textual form it was
// given in, so it is passed to the weather API unchanged.
type Coordinate string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Coordinate(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("coordinate must be a string or a number: %s", data)
	}
	*c = Coordinate(n.String())
	return nil
}

// Location is a latitude/longitude pair to query weather for.
// Both fields must be provided.
type Location struct {
	Lat Coordinate `json:"lat" validate:"required"`
	Lon Coordinate `json:"lon" validate:"required"`
}

// Key returns the "lat,lon" form used to identify a location in logs.
func (l Location) Key() string {
	return string(l.Lat) + "," + string(l.Lon)
}

// Skip describes a location left out of the combined table.
type Skip struct {
	Location Location `json:"location"`
	Stage    string   `json:"stage"` // fetch or flatten
	Reason   string   `json:"reason"`
}

const (
	StageFetch   = "fetch"
	StageFlatten = "flatten"
)
