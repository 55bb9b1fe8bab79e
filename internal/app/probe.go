package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/oauth2"
)

// ProbeRequest is a single authenticated call issued from the command line.
type ProbeRequest struct {
	Application string
	Method      string
	Path        string
	// Data is sent as a JSON body when not empty.
	Data string
}

// Probe obtains a client for the application, performs the call and writes
// the status line and response body to w. Non-2xx responses are written,
// not returned as errors.
func (app *App) Probe(ctx context.Context, req ProbeRequest, w io.Writer) error {
	client, err := app.Factory.GetClient(ctx, req.Application)
	if err != nil {
		return err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var opts []oauth2.RequestOption
	if req.Data != "" {
		opts = append(opts, oauth2.WithBody("application/json", []byte(req.Data)))
	}

	resp, err := client.Do(ctx, method, req.Path, opts...)
	if err != nil {
		return err
	}

	app.Logger.Info("Probe completed",
		logging.String("application", req.Application),
		logging.String("method", method),
		logging.String("path", req.Path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", resp.Duration),
	)

	if _, err := fmt.Fprintf(w, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode)); err != nil {
		return err
	}
	_, err = w.Write(resp.Body)
	return err
}
