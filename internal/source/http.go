package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tedgrid/internal/grid"
)

// Format is the wire format of a remote source.
type Format int

const (
	FormatJSON Format = iota
	FormatXML
)

func (f Format) String() string {
	if f == FormatXML {
		return "xml"
	}
	return "json"
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "xml":
		return FormatXML, nil
	}
	return 0, fmt.Errorf("unknown data format %q", s)
}

// maxBody caps response bodies read from a remote source.
const maxBody = 32 << 20

// HTTP fetches pages from a remote endpoint and posts edits to it.
type HTTP struct {
	URL string
	// EditURL receives edit submits. Empty means URL.
	EditURL string
	// Method is GET or POST for fetches. Edits are always POSTed.
	Method string
	Format Format
	Params grid.ParamNames
	JSON   JSONReader
	XML    XMLReader
	Client *http.Client

	nonce func() string
}

func NewHTTP(u string, format Format) *HTTP {
	return &HTTP{
		URL:    u,
		Method: http.MethodGet,
		Format: format,
		Params: grid.DefaultParamNames(),
		JSON:   DefaultJSONReader(),
		XML:    DefaultXMLReader(),
		Client: &http.Client{Timeout: 30 * time.Second},
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		},
	}
}

func (h *HTTP) do(ctx context.Context, op, method, target string, form url.Values) ([]byte, error) {
	var body io.Reader
	if method == http.MethodGet {
		u, err := url.Parse(target)
		if err != nil {
			return nil, &grid.TransportError{Op: op, Err: err}
		}
		q := u.Query()
		for k, v := range form {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		target = u.String()
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &grid.TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if h.Format == FormatXML {
		req.Header.Set("Accept", "application/xml, text/xml")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &grid.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &grid.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &grid.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return data, nil
}

func (h *HTTP) Fetch(ctx context.Context, req grid.Request) (*grid.RowSet, error) {
	var nonce string
	if h.nonce != nil {
		nonce = h.nonce()
	}
	method := h.Method
	if method == "" {
		method = http.MethodGet
	}
	data, err := h.do(ctx, "fetch", method, h.URL, Encode(req, h.Params, nonce))
	if err != nil {
		return nil, err
	}
	debugLog("fetch %s page=%d: %d bytes\n", h.URL, req.Page, len(data))
	if h.Format == FormatXML {
		return h.XML.Read(data, req.Columns)
	}
	return h.JSON.Read(data, req.Columns)
}

// Persist posts an edit. A JSON reply may confirm the row id under "id" and
// the stored values under "row".
func (h *HTTP) Persist(ctx context.Context, op grid.Operation) (grid.Result, error) {
	target := h.EditURL
	if target == "" {
		target = h.URL
	}
	data, err := h.do(ctx, "persist", http.MethodPost, target, EncodeOperation(op, h.Params))
	if err != nil {
		return grid.Result{}, err
	}
	res := grid.Result{ID: op.ID}
	if !gjson.ValidBytes(data) {
		return res, nil
	}
	reply := gjson.ParseBytes(data)
	if id := reply.Get("id"); id.Exists() && id.String() != "" {
		res.ID = id.String()
	}
	if row := reply.Get("row"); row.IsObject() {
		res.Values = make(map[string]string)
		row.ForEach(func(k, v gjson.Result) bool {
			res.Values[k.String()] = v.String()
			return true
		})
	}
	return res, nil
}
