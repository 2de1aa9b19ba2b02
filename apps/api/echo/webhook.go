package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core/payment"
)

const maxWebhookBody = 1 << 20

// signature headers, in order of preference
var webhookSignatureHeaders = []string{"X-Hub-Signature", "X-MercadoPago-Signature"}

type webhookApi struct {
	reconciler payment.Reconciler
}

func registerWebhookAPI(g *echo.Group, opts *Options) {
	api := webhookApi{reconciler: opts.Reconciler}
	g.POST("/webhooks/mercadopago", api.mercadopago)
}

func (api *webhookApi) mercadopago(ctx echo.Context) error {
	req := ctx.Request()
	body, err := ioutil.ReadAll(http.MaxBytesReader(ctx.Response(), req.Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}

	var signature string
	for _, h := range webhookSignatureHeaders {
		if signature = req.Header.Get(h); signature != "" {
			break
		}
	}

	out, err := api.reconciler.HandleWebhook(req.Context(), signature, body)
	if err != nil {
		if errors.Cause(err) == payment.ErrInvalidSignature {
			return errInvalidSignature
		}
		return errors.Wrap(err, "handling mercadopago webhook")
	}
	return ctx.JSON(http.StatusOK, out)
}
