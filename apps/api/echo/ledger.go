package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

type (
	ledgerApi struct {
		svc      *ledger.Service
		students *student.Service
	}

	fineRequest struct {
		Year    string `json:"year"`
		FeeName string `json:"fee_name"`
	}

	fineResponse struct {
		FeeName    string `json:"fee_name"`
		Delinquent bool   `json:"delinquent"`
	}

	// removeByIdentityRequest mirrors the admin removal form, which knows the student by (name, pin, branch).
	removeByIdentityRequest struct {
		Name    string `json:"name"`
		Pin     string `json:"pin"`
		Branch  string `json:"branch"`
		Year    string `json:"year"`
		FeeName string `json:"fee_name"`
	}
)

func registerLedgerAPI(g, dg *echo.Group, svc *ledger.Service, students *student.Service) {
	api := ledgerApi{svc: svc, students: students}

	g.GET("/catalog", api.catalog)
	g.POST("/catalog", api.addCatalogEntry, adminMiddleware)
	g.GET("/transactions", api.transactions, adminMiddleware)
	g.POST("/fees/remove", api.removeFeeByIdentity, adminMiddleware)

	// per student
	dg.GET("/ledger", api.ledger)
	dg.GET("/details", api.details)
	dg.GET("/dues", api.dues)
	dg.GET("/transactions", api.recentTransactions)
	dg.POST("/payments", api.pay)
	dg.POST("/extra-fees", api.addExtraFee, adminMiddleware)
	dg.DELETE("/fees/:year/:fee", api.removeFee, adminMiddleware)
	dg.POST("/fines", api.flagFine, adminMiddleware)
	dg.GET("/fines/:fee", api.isDelinquent)
}

func paymentMethods(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ledger.PaymentMethods)
}

// Handlers

func (api *ledgerApi) catalog(ctx echo.Context) error {
	catalog, err := api.svc.Catalog(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading catalog")
	}
	if catalog == nil {
		catalog = []ledger.CatalogEntry{}
	}
	return ctx.JSON(http.StatusOK, catalog)
}

func (api *ledgerApi) addCatalogEntry(ctx echo.Context) error {
	var data ledger.NewCatalogEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCatalogEntry")
	}
	entry, err := api.svc.AddCatalogEntry(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding catalog entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *ledgerApi) transactions(ctx echo.Context) error {
	filter := new(ledger.TransactionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []ledger.Transaction{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	txns, err := api.svc.Transactions(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *ledgerApi) ledger(ctx echo.Context) error {
	l, err := api.svc.Ledger(ctx.Request().Context(), ctx.Param(studentParam))
	if err != nil {
		return errors.Wrap(err, "loading ledger")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *ledgerApi) details(ctx echo.Context) error {
	st, err := api.svc.Details(ctx.Request().Context(), ctx.Param(studentParam), ctx.QueryParam("year"))
	if err != nil {
		return errors.Wrap(err, "loading fee details")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *ledgerApi) dues(ctx echo.Context) error {
	st, err := api.svc.Dues(ctx.Request().Context(), ctx.Param(studentParam), ctx.QueryParam("year"))
	if err != nil {
		return errors.Wrap(err, "loading dues")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *ledgerApi) recentTransactions(ctx echo.Context) error {
	n, err := bindLimit(ctx)
	if err != nil {
		return err
	}
	txns, err := api.svc.RecentTransactions(ctx.Request().Context(), ctx.Param(studentParam), n)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

// pay answers with the receipt as JSON, or as a text attachment with `?format=text`.
func (api *ledgerApi) pay(ctx echo.Context) error {
	var data ledger.PaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}
	receipt, err := api.svc.Pay(ctx.Request().Context(), ctx.Param(studentParam), data)
	if err != nil {
		return errors.Wrap(err, "paying fee")
	}

	if ctx.QueryParam("format") != "text" {
		return ctx.JSON(http.StatusCreated, receipt)
	}
	var buf bytes.Buffer
	if err = receipt.WriteText(&buf); err != nil {
		return errors.Wrap(err, "rendering receipt")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", receipt.Reference+".txt"))
	return ctx.Blob(http.StatusCreated, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

func (api *ledgerApi) addExtraFee(ctx echo.Context) error {
	var data ledger.NewExtraFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExtraFee")
	}
	ef, err := api.svc.AddExtraFee(ctx.Request().Context(), ctx.Param(studentParam), data)
	if err != nil {
		return errors.Wrap(err, "adding extra fee")
	}
	return ctx.JSON(http.StatusCreated, ef)
}

func (api *ledgerApi) removeFee(ctx echo.Context) error {
	err := api.svc.RemoveFee(ctx.Request().Context(), ctx.Param(studentParam), ctx.Param("year"), ctx.Param("fee"))
	if err != nil {
		return errors.Wrap(err, "removing fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *ledgerApi) removeFeeByIdentity(ctx echo.Context) error {
	var data removeByIdentityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to removeByIdentityRequest")
	}
	err := api.svc.RemoveFeeByIdentity(
		ctx.Request().Context(), api.students,
		data.Name, data.Pin, data.Branch, data.Year, data.FeeName,
	)
	if err != nil {
		return errors.Wrap(err, "removing fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *ledgerApi) flagFine(ctx echo.Context) error {
	var data fineRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to fineRequest")
	}
	if err := api.svc.FlagFine(ctx.Request().Context(), ctx.Param(studentParam), data.Year, data.FeeName); err != nil {
		return errors.Wrap(err, "flagging fine")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *ledgerApi) isDelinquent(ctx echo.Context) error {
	fee := ctx.Param("fee")
	fined, err := api.svc.IsDelinquent(ctx.Request().Context(), ctx.Param(studentParam), fee)
	if err != nil {
		return errors.Wrap(err, "checking fine")
	}
	return ctx.JSON(http.StatusOK, fineResponse{FeeName: fee, Delinquent: fined})
}
