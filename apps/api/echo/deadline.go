package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/deadline"
)

type (
	deadlineApi struct {
		scheduler *deadline.Scheduler
	}

	deadlineResponse struct {
		deadline.Deadline
		Urgency deadline.Urgency `json:"urgency"`
	}
)

func registerDeadlineAPI(g *echo.Group, scheduler *deadline.Scheduler) {
	api := deadlineApi{scheduler: scheduler}

	dg := g.Group("/deadlines")
	dg.GET("", api.query)
	dg.POST("", api.create, adminMiddleware)
	dg.DELETE("/:id", api.destroy, adminMiddleware)
	dg.POST("/:id/send", api.sendNow, adminMiddleware)
}

func newDeadlineResponse(d deadline.Deadline, now time.Time) deadlineResponse {
	return deadlineResponse{Deadline: d, Urgency: d.Urgency(now)}
}

// Handlers

func (api *deadlineApi) query(ctx echo.Context) error {
	deadlines, err := api.scheduler.Deadlines(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying deadlines")
	}
	now := core.NowFunc()
	res := make([]deadlineResponse, 0, len(deadlines))
	for _, d := range deadlines {
		res = append(res, newDeadlineResponse(d, now))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *deadlineApi) create(ctx echo.Context) error {
	var data deadline.NewDeadline
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDeadline")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.CreatedBy = claims.Subject

	d, err := api.scheduler.SetDeadline(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "setting deadline")
	}
	return ctx.JSON(http.StatusCreated, newDeadlineResponse(d, core.NowFunc()))
}

func (api *deadlineApi) destroy(ctx echo.Context) error {
	if err := api.scheduler.RemoveDeadline(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing deadline")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *deadlineApi) sendNow(ctx echo.Context) error {
	report, err := api.scheduler.SendNow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending reminders")
	}
	return ctx.JSON(http.StatusOK, report)
}
