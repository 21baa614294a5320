package ingest

// DefaultEndpoint is the WeatherAPI.com history endpoint.
const DefaultEndpoint = "https://api.weatherapi.com/v1/history.json"

// SourceKeyBuilder derives the deterministic source_url identity for a request.
// It performs plain interpolation only; inputs are validated by NewObservationRequest.
type SourceKeyBuilder struct {
	Endpoint string
}

// Build returns "{endpoint}?q={location}&dt={date}".
func (b SourceKeyBuilder) Build(location, date string) string {
	return b.Endpoint + "?q=" + location + "&dt=" + date
}
