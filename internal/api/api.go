// Package api declares the request and response messages shared by the HTTP
// and gRPC transports and their clients.
package api

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// ServiceName is the gRPC service name.
const ServiceName = "vesting.v1.VestingService"

// Full gRPC method names.
const (
	MethodHealth              = "/" + ServiceName + "/Health"
	MethodInitializeConfig    = "/" + ServiceName + "/InitializeConfig"
	MethodGetConfig           = "/" + ServiceName + "/GetConfig"
	MethodProposeOrConfirmHub = "/" + ServiceName + "/ProposeOrConfirmHub"
	MethodCreateSchedule      = "/" + ServiceName + "/CreateSchedule"
	MethodGetSchedule         = "/" + ServiceName + "/GetSchedule"
	MethodListSchedules       = "/" + ServiceName + "/ListSchedules"
	MethodGetRelease          = "/" + ServiceName + "/GetRelease"
	MethodCloseSchedule       = "/" + ServiceName + "/CloseSchedule"
	MethodGetEvents           = "/" + ServiceName + "/GetEvents"
	MethodCrank               = "/" + ServiceName + "/Crank"
	MethodOpenAccount         = "/" + ServiceName + "/OpenAccount"
	MethodGetAccount          = "/" + ServiceName + "/GetAccount"
)

type Empty struct{}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the HTTP error body. Code is the domain error code, or
// zero for transport errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

type InitializeConfigRequest struct {
	Admin           solana.PublicKey `json:"admin"`
	DistributionHub solana.PublicKey `json:"distribution_hub"`
}

type ProposeHubRequest struct {
	Address solana.PublicKey `json:"address"`
}

type CreateScheduleRequest struct {
	ID     uint64               `json:"id"`
	Params model.ScheduleParams `json:"params"`
}

type ScheduleRequest struct {
	ID uint64 `json:"id"`
}

type ReleaseRequest struct {
	ID uint64 `json:"id"`
	At int64  `json:"at,omitempty"` // unix seconds; zero = now
}

type ListSchedulesRequest struct {
	Mint     solana.PublicKey     `json:"mint,omitempty"`
	Routing  model.Routing        `json:"routing,omitempty"`
	Category model.SourceCategory `json:"category,omitempty"`
	OpenOnly bool                 `json:"open_only,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// Filter converts the request to a store filter.
func (r *ListSchedulesRequest) Filter() model.ScheduleFilter {
	f := model.ScheduleFilter{
		Routing:  r.Routing,
		Category: r.Category,
		OpenOnly: r.OpenOnly,
		Limit:    r.Limit,
		Offset:   r.Offset,
	}
	if !r.Mint.IsZero() {
		mint := r.Mint
		f.Mint = &mint
	}
	return f
}

type ListSchedulesResponse struct {
	Schedules []*model.Schedule `json:"schedules"`
	Total     int               `json:"total"`
}

type EventsResponse struct {
	Events []*model.Event `json:"events"`
}

type OpenAccountRequest struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Deposit uint64           `json:"deposit,string,omitempty"`
}

type AccountRequest struct {
	Address solana.PublicKey `json:"address"`
}

// Engine types used on the wire as-is.
type (
	CrankRequest = vesting.CrankRequest
	CrankReport  = vesting.CrankReport
	CrankPair    = vesting.CrankPair
	HubResult    = vesting.HubResult
	Release      = vesting.Release
)
