package common

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

/*AppErrorHeader - a http response header to send an application error code */
const AppErrorHeader = "X-App-Error-Code"

/*ReqRespHandlerf - a type for the default handler signature */
type ReqRespHandlerf func(w http.ResponseWriter, r *http.Request)

/*JSONResponderF - a handler that takes a standard request and responds with a json response
* Useful for GET operations where the input is coming via url parameters
 */
type JSONResponderF func(ctx context.Context, r *http.Request) (interface{}, error)

// statusCode maps an application error code to the http status to surface.
// The 423 vs 400 vs 500 distinction matters: callers must not tight-loop
// retry on server faults, but a held lock is safe to retry later.
func statusCode(err error) int {
	switch ErrCode(err) {
	case ErrSyncInProgressCode:
		return http.StatusLocked
	case ErrBadRequestCode, ErrMalformedExportCode, ErrInvalidCIDCode:
		return http.StatusBadRequest
	case ErrNoResourceCode:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

/*Respond - respond either data or error as a response */
func Respond(w http.ResponseWriter, r *http.Request, data interface{}, err error) {
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(AppErrorHeader, ErrCode(err))
		errData := make(map[string]interface{}, 2)
		errData["error"] = err.Error()
		if cerr, ok := err.(*Error); ok {
			errData["code"] = cerr.Code
		}
		buf := bytes.NewBuffer(nil)
		json.NewEncoder(buf).Encode(errData) //nolint:errcheck
		http.Error(w, buf.String(), statusCode(err))
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		json.NewEncoder(w).Encode(data) //nolint:errcheck
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	gzw := gzip.NewWriter(w)
	defer gzw.Close()
	json.NewEncoder(gzw).Encode(data) //nolint:errcheck
}

/*ToJSONResponse - An adapter that takes a handler of the form
* func AHandler(ctx context.Context, r *http.Request) (interface{}, error)
* which takes a request object, processes and returns an object or an error
* and converts it into a standard request/response handler
 */
func ToJSONResponse(handler JSONResponderF) ReqRespHandlerf {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := handler(r.Context(), r)
		Respond(w, r, data, err)
	}
}
