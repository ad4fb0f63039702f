package strava

import (
	"encoding/json"
	"time"
)

// Stream type names as Strava spells them.
const (
	StreamDistance       = "distance"
	StreamHeartrate      = "heartrate"
	StreamCadence        = "cadence"
	StreamVelocitySmooth = "velocity_smooth"
	StreamAltitude       = "altitude"
)

// PreferredStreamTypes is the fixed set of sensor streams the sync engine
// cares about. Only advertised streams intersecting this set are fetched.
var PreferredStreamTypes = []string{
	StreamCadence,
	StreamHeartrate,
	StreamDistance,
	StreamVelocitySmooth,
	StreamAltitude,
}

// AthleteProfile is the validated shape of GET /athlete
type AthleteProfile struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	Sex       string  `json:"sex"`
	WeightKg  float64 `json:"weight"`

	// Raw carries the complete payload for storage
	Raw json.RawMessage `json:"-"`
}

func parseAthleteProfile(body []byte) (*AthleteProfile, error) {
	var profile AthleteProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, invalidPayload("athlete profile", err.Error())
	}
	if profile.ID <= 0 {
		return nil, invalidPayload("athlete profile", "missing athlete id")
	}
	profile.Raw = json.RawMessage(body)
	return &profile, nil
}

// ActivityEvent is one entry from the activity list endpoint. Only the
// fields the sync pipeline depends on are part of the contract.
type ActivityEvent struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	SportType      string    `json:"sport_type"`
	StartDate      time.Time `json:"start_date"`
	DistanceMeters float64   `json:"distance"`
	ElapsedTimeSec int64     `json:"elapsed_time"`
}

func parseActivityEvents(body []byte) ([]ActivityEvent, error) {
	var events []ActivityEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, invalidPayload("activity list", err.Error())
	}
	for _, event := range events {
		if event.ID <= 0 {
			return nil, invalidPayload("activity list", "entry missing activity id")
		}
		if event.StartDate.IsZero() {
			return nil, invalidPayload("activity list", "entry missing start date")
		}
	}
	return events, nil
}

// Split is a 1km split from the activity detail payload
type Split struct {
	Sequence         int     `json:"split"`
	DistanceMeters   float64 `json:"distance"`
	ElapsedTimeSec   int64   `json:"elapsed_time"`
	MovingTimeSec    int64   `json:"moving_time"`
	AverageSpeedMps  float64 `json:"average_speed"`
	AverageHeartrate float64 `json:"average_heartrate"`
}

// Lap is a recorded interval from the activity detail payload
type Lap struct {
	Sequence         int     `json:"lap_index"`
	DistanceMeters   float64 `json:"distance"`
	ElapsedTimeSec   int64   `json:"elapsed_time"`
	MovingTimeSec    int64   `json:"moving_time"`
	AverageSpeedMps  float64 `json:"average_speed"`
	AverageHeartrate float64 `json:"average_heartrate"`
}

// ActivityDetail is the validated shape of GET /activities/{id}
type ActivityDetail struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	SportType        string    `json:"sport_type"`
	StartDate        time.Time `json:"start_date"`
	DistanceMeters   float64   `json:"distance"`
	ElapsedTimeSec   int64     `json:"elapsed_time"`
	MovingTimeSec    int64     `json:"moving_time"`
	AverageSpeedMps  float64   `json:"average_speed"`
	MaxSpeedMps      float64   `json:"max_speed"`
	AverageHeartrate float64   `json:"average_heartrate"`
	MaxHeartrate     float64   `json:"max_heartrate"`
	AverageCadence   float64   `json:"average_cadence"`
	SufferScore      float64   `json:"suffer_score"`
	Calories         float64   `json:"calories"`
	HasHeartrate     bool      `json:"has_heartrate"`

	SplitsMetric []Split `json:"splits_metric"`
	Laps         []Lap   `json:"laps"`

	// Raw carries the complete payload for storage
	Raw json.RawMessage `json:"-"`
}

func parseActivityDetail(body []byte) (*ActivityDetail, error) {
	var detail ActivityDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, invalidPayload("activity detail", err.Error())
	}
	if detail.ID <= 0 {
		return nil, invalidPayload("activity detail", "missing activity id")
	}
	if detail.StartDate.IsZero() {
		return nil, invalidPayload("activity detail", "missing start date")
	}
	detail.Raw = json.RawMessage(body)
	return &detail, nil
}

// AdvertisedStreams reports which sensor streams the provider advertises
// for this activity. The trace streams are always recorded by the device;
// heart rate and cadence depend on the sensors worn.
func (d *ActivityDetail) AdvertisedStreams() []string {
	advertised := []string{StreamDistance, StreamVelocitySmooth, StreamAltitude}
	if d.HasHeartrate {
		advertised = append(advertised, StreamHeartrate)
	}
	if d.AverageCadence > 0 {
		advertised = append(advertised, StreamCadence)
	}
	return advertised
}

// ActivityMap is the polyline map attached to an activity
type ActivityMap struct {
	ID              string `json:"id"`
	Polyline        string `json:"polyline"`
	SummaryPolyline string `json:"summary_polyline"`
}

// mapEnvelope extracts the map object from an activity payload
type mapEnvelope struct {
	ID  int64        `json:"id"`
	Map *ActivityMap `json:"map"`
}

func parseActivityMap(body []byte) (*ActivityMap, error) {
	var envelope mapEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, invalidPayload("activity map", err.Error())
	}
	if envelope.ID <= 0 {
		return nil, invalidPayload("activity map", "missing activity id")
	}
	if envelope.Map == nil {
		return &ActivityMap{}, nil
	}
	return envelope.Map, nil
}

// Stream is one sensor series from the streams endpoint
type Stream struct {
	Data         []float64 `json:"data"`
	SeriesType   string    `json:"series_type"`
	OriginalSize int       `json:"original_size"`
	Resolution   string    `json:"resolution"`
}

// StreamSet is the key_by_type response from the streams endpoint
type StreamSet map[string]Stream

func parseStreamSet(body []byte) (StreamSet, error) {
	var set StreamSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, invalidPayload("activity streams", err.Error())
	}
	for streamType, stream := range set {
		if stream.Data == nil {
			return nil, invalidPayload("activity streams", streamType+" stream missing data")
		}
	}
	return set, nil
}
