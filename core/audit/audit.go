// Package audit stores one activity log per API request.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

const (
	maxValueLength     = 2000
	maxUserAgentLength = 500
	DefaultLimit       = 200
	maxExportRows      = 10000
)

var (
	sensitiveKeywords = []string{"password", "csrfmiddlewaretoken", "token", "secret", "api_key"}
	excludedPrefixes  = []string{"/static/", "/media/", "/favicon.ico", "/robots.txt"}

	exportHeaders = []string{
		"Criado em", "Usuário", "Método", "Caminho", "View", "Status", "Sucesso", "Duração (ms)", "IP", "Referer", "Mensagem", "Dados enviados",
	}
)

type (
	Log struct {
		ID         int                    `json:"id"`
		UserID     *int                   `json:"user_id"`
		Method     string                 `json:"method"`
		Path       string                 `json:"path"`
		ViewName   string                 `json:"view_name"`
		Referer    string                 `json:"referer"`
		IP         string                 `json:"ip"`
		UserAgent  string                 `json:"user_agent"`
		StatusCode int                    `json:"status_code"`
		Success    bool                   `json:"success"`
		DurationMS int                    `json:"duration_ms"`
		Message    string                 `json:"message"`
		Payload    map[string]interface{} `json:"payload"`
		CreatedAt  time.Time              `json:"created_at"`

		// read only
		UserName string `json:"user_name,omitempty"`
	}

	Filter struct {
		UserID     int       `query:"user_id"`
		PathPrefix string    `query:"path"`
		Success    *bool     `query:"success"`
		From       time.Time `query:"-"`
		To         time.Time `query:"-"`
		Limit      int       `query:"limit"`
	}

	Repository interface {
		CreateLog(ctx context.Context, l Log) (Log, error)
		// QueryLogs returns the logs newest first, at most filter.Limit of them.
		QueryLogs(ctx context.Context, filter *Filter) ([]Log, error)
	}

	Service interface {
		// Record stores the log; failures are logged and never returned.
		Record(ctx context.Context, l Log)
		List(ctx context.Context, filter *Filter) ([]Log, error)
		ExportCSV(ctx context.Context, filter *Filter, w io.Writer) (int, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// Skip reports whether requests to path are left out of the activity log.
func Skip(path string) bool {
	if path == "" {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsSensitive reports whether a payload key may carry a credential.
func IsSensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// BuildPayload collects the query string, the form values and the JSON body of a request,
// dropping sensitive keys and truncating long values. It returns nil when there is nothing to keep.
func BuildPayload(query, form url.Values, contentType string, body []byte) map[string]interface{} {
	payload := map[string]interface{}{}
	for _, values := range []url.Values{query, form} {
		for key, vals := range values {
			if IsSensitive(key) || len(vals) == 0 {
				continue
			}
			cleaned := make([]string, len(vals))
			for i, v := range vals {
				cleaned[i] = core.Truncate(v, maxValueLength)
			}
			if len(cleaned) == 1 {
				payload[key] = cleaned[0]
			} else {
				payload[key] = cleaned
			}
		}
	}

	if strings.Contains(strings.ToLower(contentType), "json") && len(body) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			payload["json_body"] = core.Truncate(string(body), maxValueLength)
		} else {
			payload["json_body"] = sanitize(decoded)
		}
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}

// sanitize drops the sensitive keys of decoded JSON objects, at any depth.
func sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if IsSensitive(k) {
				continue
			}
			out[k] = sanitize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitize(item)
		}
		return out
	case string:
		return core.Truncate(val, maxValueLength)
	default:
		return val
	}
}

// ClientIP returns the first X-Forwarded-For entry, or the remote address.
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	return remoteAddr
}

func (svc *service) Record(ctx context.Context, l Log) {
	l.UserAgent = core.Truncate(l.UserAgent, maxUserAgentLength)
	l.Referer = core.Truncate(l.Referer, maxUserAgentLength)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if _, err := svc.repo.CreateLog(ctx, l); err != nil {
		svc.logger.Error(fmt.Sprintf("storing activity log of %s %s: %v", l.Method, l.Path, err), err)
	}
}

func (svc *service) List(ctx context.Context, filter *Filter) ([]Log, error) {
	if filter == nil {
		filter = &Filter{}
	}
	filter.PathPrefix = core.CleanString(filter.PathPrefix)
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = DefaultLimit
	}
	return svc.repo.QueryLogs(ctx, filter)
}

// ExportCSV writes the filtered logs as CSV (at most 10000 rows) and returns the number of rows.
func (svc *service) ExportCSV(ctx context.Context, filter *Filter, w io.Writer) (int, error) {
	if filter == nil {
		filter = &Filter{}
	}
	filter.Limit = maxExportRows
	logs, err := svc.repo.QueryLogs(ctx, filter)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return 0, errors.Wrap(err, "writing csv header")
	}
	for _, l := range logs {
		success := "Não"
		if l.Success {
			success = "Sim"
		}
		payload := ""
		if len(l.Payload) > 0 {
			b, _ := json.Marshal(l.Payload)
			payload = string(b)
		}
		status := ""
		if l.StatusCode != 0 {
			status = strconv.Itoa(l.StatusCode)
		}
		row := []string{
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.UserName, l.Method, l.Path, l.ViewName,
			status, success, strconv.Itoa(l.DurationMS), l.IP, l.Referer, l.Message, payload,
		}
		if err := cw.Write(row); err != nil {
			return 0, errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return len(logs), errors.Wrap(cw.Error(), "flushing csv")
}
