package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

type studentApi struct {
	students *student.Service
	ledger   *ledger.Service
}

func registerStudentAPI(sg, dg *echo.Group, students *student.Service, ledgerSvc *ledger.Service) {
	api := studentApi{students: students, ledger: ledgerSvc}

	sg.POST("", api.enroll, adminMiddleware)
	sg.GET("", api.query, adminMiddleware)

	dg.GET("", api.retrieve)
}

// Handlers

func (api *studentApi) enroll(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	s, err := api.ledger.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.students.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.students.GetByStudentID(ctx.Request().Context(), ctx.Param(studentParam))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, s)
}
