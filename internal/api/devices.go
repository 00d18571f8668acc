package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/atc-bridge/internal/discovery"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/sightings"
)

// deviceResponse describes one configured sensor.
// The bindkey is reduced to a flag.
type deviceResponse struct {
	ID         string                   `json:"id"`
	MACAddress string                   `json:"mac_address"`
	Encrypted  bool                     `json:"encrypted"`
	DeviceInfo config.DeviceInfoConfig  `json:"device_info"`
	Keys       []string                 `json:"keys"`
	Sighting   *sightings.Sighting      `json:"sighting,omitempty"`
	Sensors    []discovery.SensorStatus `json:"sensors,omitempty"`
}

// listDevicesResponse is the body of GET /api/v1/devices.
type listDevicesResponse struct {
	Devices []deviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, ok := s.buildDevices(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, listDevicesResponse{
		Devices: devices,
		Count:   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	devices, ok := s.buildDevices(w, r)
	if !ok {
		return
	}
	for _, d := range devices {
		if d.ID == id || strings.EqualFold(d.MACAddress, id) {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeNotFound(w, r, "device")
}

// buildDevices joins configuration with sightings and entity status.
// It writes an error response and returns false if sightings cannot be read.
func (s *Server) buildDevices(w http.ResponseWriter, r *http.Request) ([]deviceResponse, bool) {
	seen := make(map[string]sightings.Sighting)
	if s.sightings != nil {
		list, err := s.sightings.List(r.Context())
		if err != nil {
			s.logger.Error("listing sightings failed", "error", err)
			writeInternalError(w, r, "failed to list sightings")
			return nil, false
		}
		for _, sg := range list {
			seen[sg.DeviceID] = sg
		}
	}

	entities := make(map[string][]discovery.SensorStatus)
	if s.sensors != nil {
		for _, sensor := range s.sensors.Sensors() {
			entities[sensor.DeviceID()] = append(entities[sensor.DeviceID()], sensor.Status())
		}
	}

	out := make([]deviceResponse, 0, len(s.devices))
	for _, d := range s.devices {
		resp := deviceResponse{
			ID:         d.ID,
			MACAddress: d.MACAddress,
			Encrypted:  d.BindKey != "",
			DeviceInfo: d.DeviceInfo,
			Keys:       d.Sensor.Keys(),
			Sensors:    entities[d.ID],
		}
		if sg, ok := seen[d.ID]; ok {
			resp.Sighting = &sg
		}
		out = append(out, resp)
	}
	return out, true
}
