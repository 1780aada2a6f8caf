package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// MessageSink receives the full text of an http exchange, debug runs point it
// at the artifact directory.
type MessageSink interface {
	Write(id string, contents []byte)
}

type instrumentResty struct {
	tel       API
	sink      MessageSink
	idcounter *uint64
}

// InstrumentResty reports every request made by client, sink may be nil.
func InstrumentResty(client *resty.Client, tel API, sink MessageSink) {
	var idcounter uint64
	i := instrumentResty{tel: tel, sink: sink, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// only used for a duration, so wall clock is fine here
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	ctx := context.WithValue(req.Context(), reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)
	req.SetContext(ctx)
	return nil
}

func requestCtx(req *resty.Request) reqCtx {
	rc, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return reqCtx{startTime: time.Now()}
	}
	return rc
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc := requestCtx(res.Request)
	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	if i.sink != nil && res.Request.RawRequest != nil {
		i.sink.Write(fmt.Sprintf("http-%03d.txt", rc.id), []byte(formatHttpMessage(res)))
	}
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	rc := requestCtx(req)
	i.tel.ReportWarning(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		time.Since(rc.startTime),
	)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{}
	for _, k := range keys {
		value := strings.Join(headers[k], ", ")
		// session cookies end up in debug dumps otherwise
		if strings.EqualFold(k, "cookie") || strings.EqualFold(k, "set-cookie") {
			value = "<redacted>"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, value))
	}
	return strings.Join(lines, "\n")
}

func formatRequestBody(req *http.Request) string {
	if req.GetBody == nil {
		return "<NO BODY>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	read, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(read)
}

// 1: request method
// 2: request url
// 3: request headers
// 4: request body
// 5: response status
// 6: response url
// 7: response headers
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

func formatHttpMessage(res *resty.Response) string {
	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		if redirected, err := res.RawResponse.Location(); err == nil {
			responseUrl = redirected.String()
		}
	}

	return fmt.Sprintf(
		messageInfoTemplate,
		res.Request.Method, res.Request.URL,
		formatHeaders(res.Request.RawRequest.Header),
		formatRequestBody(res.Request.RawRequest),
		strconv.Itoa(res.StatusCode()), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
