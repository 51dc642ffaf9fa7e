// Package source holds the data sources a grid fetches from: remote JSON and
// XML endpoints, SQL relations and in-memory arrays.
package source

import (
	"fmt"
	"net/url"
	"strconv"

	"tedgrid/internal/grid"
)

// Encode renders a fetch request as request parameters. Extra parameters are
// written first so the standard names win on collision.
func Encode(req grid.Request, names grid.ParamNames, nonce string) url.Values {
	v := url.Values{}
	for k, val := range req.Extra {
		v.Set(k, val)
	}
	set := func(name, val string) {
		if name != "" {
			v.Set(name, val)
		}
	}
	set(names.Page, strconv.Itoa(req.Page))
	set(names.Rows, strconv.Itoa(req.Rows))
	set(names.Sort, req.SortIndex)
	set(names.Order, req.SortOrder.String())
	set(names.Search, strconv.FormatBool(req.Search))
	if nonce != "" {
		set(names.Nonce, nonce)
	}
	if req.Search && req.Filter != nil {
		set(names.SearchField, req.Filter.Field)
		set(names.SearchString, req.Filter.Value)
		set(names.SearchOper, req.Filter.Oper)
	}
	if n := req.Node; n != nil {
		set(names.NodeID, n.ID)
		set(names.NodeLvl, strconv.Itoa(n.Level))
		if n.Model == grid.NestedSet {
			set(names.NodeLft, strconv.Itoa(n.Lft))
			set(names.NodeRgt, strconv.Itoa(n.Rgt))
		} else {
			set(names.ParentID, n.ParentID)
		}
	}
	return v
}

// EncodeOperation renders an edit submit: the operation marker, the row id
// and the edited values.
func EncodeOperation(op grid.Operation, names grid.ParamNames) url.Values {
	v := url.Values{}
	for k, val := range op.Values {
		v.Set(k, val)
	}
	v.Set(names.Oper, names.OperName(op.Kind))
	if op.Kind == grid.OperAdd && op.ID == "" {
		v.Set(names.ID, "_empty")
	} else {
		v.Set(names.ID, op.ID)
	}
	return v
}

func intParam(v url.Values, name string, def int) (int, error) {
	s := v.Get(name)
	if name == "" || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	return n, nil
}

// DecodeRequest parses request parameters back into a fetch request.
// Parameters with no standard meaning end up in Extra.
func DecodeRequest(v url.Values, names grid.ParamNames) (grid.Request, error) {
	var req grid.Request
	var err error
	if req.Page, err = intParam(v, names.Page, 1); err != nil {
		return req, err
	}
	req.Page = max(req.Page, 1)
	if req.Rows, err = intParam(v, names.Rows, 0); err != nil {
		return req, err
	}
	req.SortIndex = v.Get(names.Sort)
	req.SortOrder = grid.ParseSortOrder(v.Get(names.Order))
	req.Search = v.Get(names.Search) == "true"
	if req.Search && v.Get(names.SearchField) != "" {
		req.Filter = &grid.Filter{
			Field: v.Get(names.SearchField),
			Oper:  v.Get(names.SearchOper),
			Value: v.Get(names.SearchString),
		}
		if req.Filter.Oper == "" {
			req.Filter.Oper = "eq"
		}
	}

	if id := v.Get(names.NodeID); id != "" {
		node := &grid.NodeRequest{ID: id, Model: grid.Adjacency}
		if node.Level, err = intParam(v, names.NodeLvl, 0); err != nil {
			return req, err
		}
		if v.Has(names.NodeLft) {
			node.Model = grid.NestedSet
			if node.Lft, err = intParam(v, names.NodeLft, 0); err != nil {
				return req, err
			}
			if node.Rgt, err = intParam(v, names.NodeRgt, 0); err != nil {
				return req, err
			}
		} else {
			node.ParentID = v.Get(names.ParentID)
		}
		req.Node = node
	}

	known := map[string]bool{
		names.Page: true, names.Rows: true, names.Sort: true, names.Order: true,
		names.Search: true, names.Nonce: true,
		names.SearchField: true, names.SearchString: true, names.SearchOper: true,
		names.NodeID: true, names.ParentID: true, names.NodeLvl: true,
		names.NodeLft: true, names.NodeRgt: true,
	}
	for k := range v {
		if known[k] {
			continue
		}
		if req.Extra == nil {
			req.Extra = make(map[string]string)
		}
		req.Extra[k] = v.Get(k)
	}
	return req, nil
}

// DecodeOperation parses an edit submit. ok is false when the parameters
// carry no operation marker.
func DecodeOperation(v url.Values, names grid.ParamNames) (op grid.Operation, ok bool, err error) {
	oper := v.Get(names.Oper)
	if oper == "" {
		return op, false, nil
	}
	kind, known := names.ParseOper(oper)
	if !known {
		return op, true, fmt.Errorf("unknown operation %q", oper)
	}
	op.Kind = kind
	op.ID = v.Get(names.ID)
	if kind == grid.OperAdd && op.ID == "_empty" {
		op.ID = ""
	}
	if kind != grid.OperAdd && op.ID == "" {
		return op, true, fmt.Errorf("%s without %s", oper, names.ID)
	}
	op.Values = make(map[string]string)
	for k := range v {
		if k == names.Oper || k == names.ID || k == names.Nonce {
			continue
		}
		op.Values[k] = v.Get(k)
	}
	return op, true, nil
}
