package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ondelive/onde/pkg/radio"
	"github.com/tidwall/gjson"
)

// RadioService wraps the radio endpoints. It satisfies radio.API.
type RadioService struct {
	c *Client
}

// Radio returns the radio service.
func (c *Client) Radio() *RadioService {
	return &RadioService{c: c}
}

// Stations lists all stations, normalized regardless of wire shape.
func (s *RadioService) Stations(ctx context.Context) ([]radio.Station, error) {
	raw, err := s.c.DoRaw(ctx, http.MethodGet, "/radio/Stations", nil)
	if err != nil {
		return nil, err
	}

	var stations []radio.Station
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		stations = append(stations, radio.StationFromWire([]byte(v.Raw)))
		return true
	})
	return stations, nil
}

// LiveStreams fetches the current live-stream snapshot for all stations.
func (s *RadioService) LiveStreams(ctx context.Context) ([]radio.LiveStream, error) {
	raw, err := s.c.DoRaw(ctx, http.MethodGet, "/radio/LiveStream", nil)
	if err != nil {
		return nil, err
	}
	return radio.ParseLiveStreams(raw), nil
}

// SelectStation tells the backend which station to publish updates for.
func (s *RadioService) SelectStation(ctx context.Context, stationID int) error {
	_, err := s.c.DoRaw(ctx, http.MethodPost, fmt.Sprintf("/radio/selectStation/%d", stationID), nil)
	return err
}
