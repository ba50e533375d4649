package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/volume"
)

// UsageVolumeState is the realized volume state of one usage.
type UsageVolumeState struct {
	Usage  string  `json:"usage"`
	Volume float64 `json:"volume"`
	GainDB float64 `json:"gain_db"`
}

// VolumeListResponse reports all usages.
type VolumeListResponse struct {
	Body struct {
		Usages []UsageVolumeState `json:"usages"`
	}
}

// SetVolumeInput sets the user volume of one usage.
type SetVolumeInput struct {
	Usage string `path:"usage" doc:"Usage name, e.g. render-media"`
	Body  struct {
		Volume float64 `json:"volume" minimum:"0" maximum:"1" doc:"User volume in [0, 1]"`
		RampMS int     `json:"ramp_ms,omitempty" minimum:"0" doc:"Optional linear ramp duration"`
	}
}

// SetUsageGainInput sets usage gain or gain adjustment in decibels.
type SetUsageGainInput struct {
	Usage string `path:"usage" doc:"Usage name, e.g. capture-foreground"`
	Body  struct {
		GainDB     *float64 `json:"gain_db,omitempty" doc:"Absolute usage gain in decibels"`
		Adjustment *float64 `json:"adjustment_db,omitempty" doc:"Policy gain adjustment in decibels"`
	}
}

// UsageVolumeResponse returns the state of one usage after a change.
type UsageVolumeResponse struct {
	Body UsageVolumeState
}

func (s *Server) usageState(u volume.Usage) UsageVolumeState {
	return UsageVolumeState{
		Usage:  u.String(),
		Volume: s.volumes.UsageVolume(u),
		GainDB: s.volumes.UsageGainDB(u),
	}
}

func (s *Server) registerVolumeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-volumes",
		Method:      http.MethodGet,
		Path:        "/api/volume",
		Summary:     "List Usage Volumes",
		Description: "Report volume and gain per usage",
		Tags:        []string{"volume"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*VolumeListResponse, error) {
		resp := &VolumeListResponse{}
		for _, u := range volume.Usages() {
			resp.Body.Usages = append(resp.Body.Usages, s.usageState(u))
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-usage-volume",
		Method:      http.MethodPut,
		Path:        "/api/volume/{usage}",
		Summary:     "Set Usage Volume",
		Description: "Set the user volume for one usage, optionally ramped",
		Tags:        []string{"volume"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *SetVolumeInput) (*UsageVolumeResponse, error) {
		u, ok := volume.ParseUsage(input.Usage)
		if !ok {
			return nil, huma.Error400BadRequest("unknown usage: " + input.Usage)
		}
		var ramp *volume.Ramp
		if input.Body.RampMS > 0 {
			ramp = &volume.Ramp{Duration: time.Duration(input.Body.RampMS) * time.Millisecond}
		}
		s.volumes.SetUsageVolume(u, input.Body.Volume, ramp)
		return &UsageVolumeResponse{Body: s.usageState(u)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-usage-gain",
		Method:      http.MethodPut,
		Path:        "/api/volume/{usage}/gain",
		Summary:     "Set Usage Gain",
		Description: "Set usage gain or policy gain adjustment in decibels",
		Tags:        []string{"volume"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *SetUsageGainInput) (*UsageVolumeResponse, error) {
		u, ok := volume.ParseUsage(input.Usage)
		if !ok {
			return nil, huma.Error400BadRequest("unknown usage: " + input.Usage)
		}
		if input.Body.GainDB != nil {
			s.volumes.SetUsageGain(u, *input.Body.GainDB)
		}
		if input.Body.Adjustment != nil {
			s.volumes.SetUsageGainAdjustment(u, *input.Body.Adjustment)
		}
		return &UsageVolumeResponse{Body: s.usageState(u)}, nil
	})
}
