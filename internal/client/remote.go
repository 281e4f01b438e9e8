package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/server"
)

// RemoteConfig configures a Remote client.
type RemoteConfig struct {
	Host     string
	Timeout  time.Duration
	Username string
	Password string
	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Remote talks to the ledger HTTP service.
type Remote struct {
	base     *url.URL
	http     *http.Client
	username string
	password string
	now      func() time.Time
}

// NewRemote validates the host and returns a client for it. A host
// without scheme is treated as http.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, core.InvalidRequestf("remote host is required")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil || base.Host == "" {
		return nil, core.InvalidRequestf("invalid remote host %q", cfg.Host)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Remote{base: base, http: hc, username: cfg.Username, password: cfg.Password, now: now}, nil
}

func (r *Remote) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

// Run maps the command onto its REST resource.
func (r *Remote) Run(ctx context.Context, cmd server.Command, p server.Params) (server.Response, error) {
	method, path, query, body, err := r.route(cmd, p)
	if err != nil {
		return server.Response{}, err
	}
	if method == "" {
		return server.Response{Error: "unknown command: " + string(cmd)}, nil
	}
	return r.do(ctx, method, path, query, body)
}

// route returns an empty method for unknown commands.
func (r *Remote) route(cmd server.Command, p server.Params) (method, path string, query url.Values, body any, err error) {
	periodName, err := server.ValidatePeriodName(p.Period)
	if err != nil {
		return "", "", nil, nil, err
	}
	if periodName == "" {
		periodName = core.DefaultPeriodName(r.now())
	}
	periodPath := "/periods/" + url.PathEscape(periodName)
	entryPath := func() (string, error) {
		if p.EID <= 0 {
			return "", core.InvalidRequestf("eid is required")
		}
		table, err := core.ParseTableName(p.TableName)
		if err != nil {
			return "", err
		}
		return periodPath + "/" + string(table) + "/" + strconv.Itoa(p.EID), nil
	}

	switch cmd {
	case server.CmdPeriods:
		return http.MethodGet, "/periods", nil, nil, nil
	case server.CmdList:
		q := url.Values{}
		for k, v := range p.Filters {
			q.Set(k, v)
		}
		return http.MethodGet, periodPath, q, nil, nil
	case server.CmdAdd:
		body := p
		body.Period, body.EID = "", 0
		return http.MethodPost, periodPath, nil, body, nil
	case server.CmdGet, server.CmdRemove:
		path, err := entryPath()
		if err != nil {
			return "", "", nil, nil, err
		}
		method := http.MethodGet
		if cmd == server.CmdRemove {
			method = http.MethodDelete
		}
		return method, path, nil, nil, nil
	case server.CmdUpdate:
		path, err := entryPath()
		if err != nil {
			return "", "", nil, nil, err
		}
		body := p
		body.Period, body.EID, body.TableName = "", 0, ""
		return http.MethodPatch, path, nil, body, nil
	case server.CmdCopy:
		return http.MethodPost, "/copy", nil, server.Params{
			EID:               p.EID,
			TableName:         p.TableName,
			SourcePeriod:      p.SourcePeriod,
			DestinationPeriod: p.DestinationPeriod,
		}, nil
	}
	return "", "", nil, nil, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (r *Remote) do(ctx context.Context, method, path string, query url.Values, body any) (server.Response, error) {
	u := *r.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return server.Response{}, core.WrapError(core.CodeInternal, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return server.Response{}, core.WrapError(core.CodeInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.username != "" || r.password != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	res, err := r.http.Do(req)
	if err != nil {
		return server.Response{}, core.WrapError(core.CodeCommunication, "error sending request: "+err.Error(), err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return server.Response{}, core.WrapError(core.CodeCommunication, "error reading response: "+err.Error(), err)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		var resp server.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return server.Response{}, core.WrapError(core.CodeCommunication, "invalid response from server", err)
		}
		return resp, nil
	}
	return server.Response{}, statusError(res.StatusCode, data)
}

// statusError classifies a non-2xx response.
func statusError(status int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := strings.TrimSpace(eb.Error)
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return core.NotFoundf("%s", msg)
	case status >= 400 && status < 500:
		return core.InvalidRequestf("%s", msg)
	default:
		return core.NewError(core.CodeCommunication, "server error (%d): %s", status, msg)
	}
}

var _ Client = (*Remote)(nil)

func (r *Remote) String() string {
	return fmt.Sprintf("remote(%s)", r.base.Redacted())
}
