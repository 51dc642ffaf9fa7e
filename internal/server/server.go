// Package server exposes a grid source over HTTP using the standard grid
// request parameters and response envelope.
package server

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"maps"
	"net/http"
	"slices"

	"tedgrid/internal/grid"
	"tedgrid/internal/source"
)

// Handler answers fetches from Source and, when Persister is set, edit
// submits carrying an operation marker.
type Handler struct {
	Source    grid.Source
	Persister grid.Persister
	Params    grid.ParamNames
	Format    source.Format
	// Columns orders the cells of repeat-item rows.
	Columns []string
	// OnError sees every failed request.
	OnError func(r *http.Request, err error)
}

type Option func(*Handler)

func WithPersister(p grid.Persister) Option {
	return func(h *Handler) { h.Persister = p }
}

func WithFormat(f source.Format) Option {
	return func(h *Handler) { h.Format = f }
}

func WithParams(p grid.ParamNames) Option {
	return func(h *Handler) { h.Params = p }
}

func WithErrorHandler(fn func(r *http.Request, err error)) Option {
	return func(h *Handler) { h.OnError = fn }
}

func New(src grid.Source, columns []string, opts ...Option) *Handler {
	h := &Handler{
		Source:  src,
		Params:  grid.DefaultParamNames(),
		Columns: columns,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	debugLog("%s %s: %d %v\n", r.Method, r.URL.Path, status, err)
	if h.OnError != nil {
		h.OnError(r, err)
	}
	http.Error(w, err.Error(), status)
}

func statusOf(err error) int {
	var verr *grid.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrUnknownRow):
		return http.StatusNotFound
	case errors.Is(err, grid.ErrLocalSource):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	op, isEdit, err := source.DecodeOperation(r.Form, h.Params)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if isEdit {
		h.persist(w, r, op)
		return
	}

	req, err := source.DecodeRequest(r.Form, h.Params)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	req.Columns = h.Columns
	rs, err := h.Source.Fetch(r.Context(), req)
	if err != nil {
		h.fail(w, r, statusOf(err), err)
		return
	}
	if h.Format == source.FormatXML {
		h.writeXML(w, rs)
		return
	}
	h.writeJSON(w, rs)
}

type editReply struct {
	ID  string            `json:"id"`
	Row map[string]string `json:"row,omitempty"`
}

func (h *Handler) persist(w http.ResponseWriter, r *http.Request, op grid.Operation) {
	if r.Method != http.MethodPost {
		h.fail(w, r, http.StatusMethodNotAllowed, errors.New("edits must be posted"))
		return
	}
	if h.Persister == nil {
		h.fail(w, r, http.StatusForbidden, errors.New("grid is read-only"))
		return
	}
	res, err := h.Persister.Persist(r.Context(), op)
	if err != nil {
		h.fail(w, r, statusOf(err), err)
		return
	}
	debugLog("%s %q -> %q\n", op.Kind, op.ID, res.ID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(editReply{ID: res.ID, Row: res.Values})
}

type jsonRow struct {
	ID   string   `json:"id"`
	Cell []string `json:"cell"`
}

type jsonEnvelope struct {
	Page     int               `json:"page"`
	Total    int               `json:"total"`
	Records  int               `json:"records"`
	Rows     []jsonRow         `json:"rows"`
	UserData map[string]string `json:"userdata,omitempty"`
}

func (h *Handler) cells(row *grid.Row) []string {
	cells := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		cells[i] = row.Cells[c]
	}
	return cells
}

func (h *Handler) writeJSON(w http.ResponseWriter, rs *grid.RowSet) {
	env := jsonEnvelope{
		Page:     rs.Page,
		Total:    rs.Total,
		Records:  rs.Records,
		Rows:     make([]jsonRow, len(rs.Rows)),
		UserData: rs.UserData,
	}
	for i, row := range rs.Rows {
		env.Rows[i] = jsonRow{ID: row.ID, Cell: h.cells(row)}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

type xmlRow struct {
	ID    string   `xml:"id,attr"`
	Cells []string `xml:"cell"`
}

type xmlUserData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlEnvelope struct {
	XMLName  xml.Name      `xml:"rows"`
	Page     int           `xml:"page"`
	Total    int           `xml:"total"`
	Records  int           `xml:"records"`
	Rows     []xmlRow      `xml:"row"`
	UserData []xmlUserData `xml:"userdata"`
}

func (h *Handler) writeXML(w http.ResponseWriter, rs *grid.RowSet) {
	env := xmlEnvelope{
		Page:    rs.Page,
		Total:   rs.Total,
		Records: rs.Records,
		Rows:    make([]xmlRow, len(rs.Rows)),
	}
	for i, row := range rs.Rows {
		env.Rows[i] = xmlRow{ID: row.ID, Cells: h.cells(row)}
	}
	for _, name := range slices.Sorted(maps.Keys(rs.UserData)) {
		env.UserData = append(env.UserData, xmlUserData{Name: name, Value: rs.UserData[name]})
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(env)
}
