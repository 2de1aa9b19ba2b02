package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

const (
	// multipart requests carry their JSON payload in this form field
	multipartDataField = "data"
	maxUploadSize      = 10 << 20
)

var errUploadTooLarge = core.NewValidationError(errors.New("arquivo muito grande (máximo 10 MB)"))

type validatable interface {
	Validate(validate *validator.Validate) error
}

// bindAndValidate binds the request to form and runs its own validation.
func bindAndValidate(ctx echo.Context, validate *validator.Validate, form validatable, what string) error {
	if err := bindPayload(ctx, form); err != nil {
		return errors.Wrap(err, "binding to "+what)
	}
	return form.Validate(validate)
}

// bindPayload binds JSON requests as usual and multipart requests from their "data" field.
func bindPayload(ctx echo.Context, dest interface{}) error {
	if !isMultipart(ctx) {
		return ctx.Bind(dest)
	}
	raw := ctx.FormValue(multipartDataField)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formUpload reads the file of a multipart field; it returns nil when the field is missing.
func formUpload(ctx echo.Context, field string) (*core.Upload, error) {
	if !isMultipart(ctx) {
		return nil, nil
	}
	fh, err := ctx.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", field)
	}
	if fh.Size > maxUploadSize {
		return nil, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", field)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, errors.Wrapf(err, "copying %s", field)
	}
	return &core.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     &buf,
	}, nil
}

// paramID reads an integer path parameter; anything else is a 404.
func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// queryInt reads an optional integer query parameter, defaulting to def.
func queryInt(ctx echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(ctx.QueryParam(name)); err == nil {
		return v
	}
	return def
}

// queryDate reads an optional YYYY-MM-DD query parameter in the club's time zone.
func queryDate(ctx echo.Context, name string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, "data inválida, use AAAA-MM-DD")
	}
	return t, nil
}
