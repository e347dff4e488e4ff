package api

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/fako1024/libra/pkg/scale"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultSettleSamples = 3
	defaultSettleTimeout = 10 * time.Second
	defaultNoiseRatio    = 0.1
)

// API denotes a local control API for a single scale. A scale must not be
// driven concurrently, hence every request holds the provided lock for its
// whole duration (the same lock the poll loop is expected to hold).
type API struct {
	scale  scale.Controller
	lock   sync.Locker
	router *fiber.App
}

// Status denotes the response of the status endpoint
type Status struct {
	Device           string   `json:"device"`
	State            string   `json:"state"`
	Error            string   `json:"error,omitempty"`
	LastStableWeight *float64 `json:"last_stable_weight,omitempty"`
}

// Measurement denotes the response of the measure endpoint
type Measurement struct {
	Device string  `json:"device"`
	Value  float64 `json:"value"`
	Raw    bool    `json:"raw"`
}

// New instantiates a new API
func New(s scale.Controller, lock sync.Locker) *API {

	api := API{
		scale: s,
		lock:  lock,
		router: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
	}

	// Setup routes
	api.router.Get("/status", api.handleStatus())
	api.router.Post("/restart", api.handleRestart())
	api.router.Get("/measure", api.handleMeasure())

	return &api
}

// Listen serves the API on the given endpoint (blocking)
func (api *API) Listen(endpoint string) error {
	return api.router.Listen(endpoint)
}

// Shutdown gracefully stops serving the API
func (api *API) Shutdown() error {
	return api.router.Shutdown()
}

func (api *API) handleStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.lock.Lock()
		defer api.lock.Unlock()

		status := api.scale.ConnectionStatus()
		resp := Status{
			Device: api.scale.Device().String(),
			State:  status.State.String(),
		}
		if status.Error != nil {
			resp.Error = status.Error.Error()
		}
		if weight, ok := api.scale.LastStableWeight(); ok {
			resp.LastStableWeight = &weight
		}

		return c.JSON(resp)
	}
}

func (api *API) handleRestart() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		api.lock.Lock()
		defer api.lock.Unlock()

		if err := api.scale.Restart(); err != nil {
			return err
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (api *API) handleMeasure() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {

		samples := c.QueryInt("samples", defaultSettleSamples)
		raw := c.QueryBool("raw", false)
		timeout := defaultSettleTimeout
		if val := c.Query("timeout"); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid timeout: "+err.Error())
			}
			timeout = d
		}
		noiseRatio := defaultNoiseRatio
		if val := c.Query("noise"); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid noise ratio: "+err.Error())
			}
			noiseRatio = f
		}

		api.lock.Lock()
		defer api.lock.Unlock()

		var (
			value float64
			err   error
		)
		if raw {
			value, err = api.scale.RawReadOnceSettled(samples, timeout, noiseRatio)
		} else {
			value, err = api.scale.WeighOnceSettled(samples, timeout, noiseRatio)
		}
		if err != nil {
			return err
		}

		return c.JSON(Measurement{
			Device: api.scale.Device().String(),
			Value:  value,
			Raw:    raw,
		})
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, scale.ErrInvalidArgument):
		code = fiber.StatusBadRequest
	case errors.Is(err, scale.ErrTimeout):
		code = fiber.StatusGatewayTimeout
	case errors.Is(err, scale.ErrNotConnected):
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
