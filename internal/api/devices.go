package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/device"
)

// DeviceListResponse wraps the device snapshot.
type DeviceListResponse struct {
	Body struct {
		Devices []device.DeviceInfo `json:"devices"`
	}
}

// DeviceGainInput sets a device's gain state. Omitted fields are left
// unchanged.
type DeviceGainInput struct {
	DeviceID string `path:"device_id" doc:"Device identifier"`
	Body     struct {
		GainDB *float64 `json:"gain_db,omitempty" example:"-12.5" doc:"Gain in decibels"`
		Muted  *bool    `json:"muted,omitempty" doc:"Hardware mute"`
		AGC    *bool    `json:"agc,omitempty" doc:"Automatic gain control"`
	}
}

// DeviceGainResponse returns the applied gain state.
type DeviceGainResponse struct {
	Body device.GainState
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List live audio devices with driver state and gain",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*DeviceListResponse, error) {
		resp := &DeviceListResponse{}
		resp.Body.Devices = s.manager.Devices()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-device-gain",
		Method:      http.MethodPut,
		Path:        "/api/devices/{device_id}/gain",
		Summary:     "Set Device Gain",
		Description: "Update a device's hardware gain state",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *DeviceGainInput) (*DeviceGainResponse, error) {
		var state device.GainState
		var flags device.DirtyFlags
		if input.Body.GainDB != nil {
			state.GainDB = *input.Body.GainDB
			flags |= device.DirtyGain
		}
		if input.Body.Muted != nil {
			state.Muted = *input.Body.Muted
			flags |= device.DirtyMute
		}
		if input.Body.AGC != nil {
			state.AGCEnabled = *input.Body.AGC
			flags |= device.DirtyAGC
		}
		if err := s.manager.SetDeviceGain(input.DeviceID, state, flags); err != nil {
			var de *device.DeviceError
			if errors.As(err, &de) && de.Code == device.ErrCodeDeviceNotFound {
				return nil, huma.Error404NotFound(de.Message, err)
			}
			return nil, huma.Error500InternalServerError("failed to set device gain", err)
		}

		resp := &DeviceGainResponse{}
		for _, d := range s.manager.Devices() {
			if d.ID == input.DeviceID {
				resp.Body = d.Gain
				break
			}
		}
		return resp, nil
	})
}
