package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
	"tedgrid/internal/source"
)

// GridFile is the yaml document describing a set of named grids and the
// database they read from.
type GridFile struct {
	Connection Config             `yaml:"connection"`
	Locale     *LocaleDef         `yaml:"locale"`
	Grids      map[string]GridDef `yaml:"grids"`
}

type LocaleDef struct {
	DecimalSeparator   string `yaml:"decimal_separator"`
	ThousandsSeparator string `yaml:"thousands_separator"`
	DecimalPlaces      *int   `yaml:"decimal_places"`
	CurrencyPrefix     string `yaml:"currency_prefix"`
	CurrencySuffix     string `yaml:"currency_suffix"`
	SrcDateFormat      string `yaml:"src_date_format"`
	NewDateFormat      string `yaml:"new_date_format"`
}

// GridDef describes one grid. Exactly one of Table, Query, URL or Data names
// its rows.
type GridDef struct {
	Table string              `yaml:"table"`
	Query string              `yaml:"query"`
	URL   string              `yaml:"url"`
	Data  []map[string]string `yaml:"data"`

	EditURL string            `yaml:"edit_url"`
	Format  string            `yaml:"format"`
	Method  string            `yaml:"method"`
	Params  map[string]string `yaml:"params"`
	// Bind maps extra request parameters to filtered columns of a table grid.
	Bind map[string]string `yaml:"bind"`

	RowsPerPage     int    `yaml:"rows_per_page"`
	SortName        string `yaml:"sort_name"`
	SortOrder       string `yaml:"sort_order"`
	LoadOnce        bool   `yaml:"load_once"`
	Scroll          bool   `yaml:"scroll"`
	AltRows         *bool  `yaml:"alt_rows"`
	MultiSelect     bool   `yaml:"multi_select"`
	EditMode        string `yaml:"edit_mode"`
	MultipleEdits   bool   `yaml:"multiple_edits"`
	CheckOnNavigate bool   `yaml:"check_on_navigate"`

	Columns []ColumnDef `yaml:"columns"`
	// Show limits a schema derived column model to these columns.
	Show    []string    `yaml:"show"`
	Tree    *TreeDef    `yaml:"tree"`
	SubGrid *SubGridDef `yaml:"subgrid"`
}

type ColumnDef struct {
	Name       string `yaml:"name"`
	Label      string `yaml:"label"`
	Index      string `yaml:"index"`
	Width      int    `yaml:"width"`
	Align      string `yaml:"align"`
	Sortable   *bool  `yaml:"sortable"`
	Editable   bool   `yaml:"editable"`
	Hidden     bool   `yaml:"hidden"`
	Fixed      bool   `yaml:"fixed"`
	Searchable *bool  `yaml:"searchable"`
	Key        bool   `yaml:"key"`
	SortType   string `yaml:"sort_type"`

	EditType string `yaml:"edit_type"`
	// Options lists select values as "value:label;value:label".
	Options  string `yaml:"options"`
	Multiple bool   `yaml:"multiple"`
	// Checkbox holds the on and off values as "on:off".
	Checkbox string   `yaml:"checkbox"`
	Default  string   `yaml:"default"`
	Rules    RulesDef `yaml:"rules"`

	Formatter string    `yaml:"formatter"`
	Format    FormatDef `yaml:"format"`
}

type RulesDef struct {
	Required   bool     `yaml:"required"`
	Number     bool     `yaml:"number"`
	Integer    bool     `yaml:"integer"`
	Min        *float64 `yaml:"min"`
	Max        *float64 `yaml:"max"`
	Email      bool     `yaml:"email"`
	URL        bool     `yaml:"url"`
	Date       bool     `yaml:"date"`
	Time       bool     `yaml:"time"`
	DateFormat string   `yaml:"date_format"`
}

type FormatDef struct {
	DecimalSeparator   string `yaml:"decimal_separator"`
	ThousandsSeparator string `yaml:"thousands_separator"`
	DecimalPlaces      *int   `yaml:"decimal_places"`
	Prefix             string `yaml:"prefix"`
	Suffix             string `yaml:"suffix"`
	Default            string `yaml:"default"`
	SrcFormat          string `yaml:"src_format"`
	NewFormat          string `yaml:"new_format"`
	BaseLinkURL        string `yaml:"base_link_url"`
	ShowAction         string `yaml:"show_action"`
	AddParam           string `yaml:"add_param"`
	IDName             string `yaml:"id_name"`
	Target             string `yaml:"target"`
	Separator          string `yaml:"separator"`
}

type TreeDef struct {
	Model        string `yaml:"model"`
	ExpandColumn string `yaml:"expand_column"`
	RootLevel    int    `yaml:"root_level"`
	Level        string `yaml:"level"`
	Left         string `yaml:"left"`
	Right        string `yaml:"right"`
	Parent       string `yaml:"parent"`
	Leaf         string `yaml:"leaf"`
}

type SubGridDef struct {
	Table  string      `yaml:"table"`
	URL    string      `yaml:"url"`
	Format string      `yaml:"format"`
	Param  string      `yaml:"param"`
	// Column is the child table column matched against the parent row id.
	Column  string      `yaml:"column"`
	Columns []ColumnDef `yaml:"columns"`
}

func loadGridFile(path string) (*GridFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseGridFile(data)
}

func parseGridFile(data []byte) (*GridFile, error) {
	var f GridFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid grid file: %w", err)
	}
	for name, def := range f.Grids {
		if err := def.check(); err != nil {
			return nil, fmt.Errorf("grid %s: %w", name, err)
		}
	}
	return &f, nil
}

func (d GridDef) check() error {
	n := 0
	for _, set := range []bool{d.Table != "", d.Query != "", d.URL != "", d.Data != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of table, query, url or data is required")
	}
	if d.Tree != nil && d.SubGrid != nil {
		return fmt.Errorf("a grid is either a tree or has a subgrid, not both")
	}
	if d.Query != "" {
		if _, err := cleanQuery(d.Query); err != nil {
			return err
		}
	}
	return nil
}

// cleanQuery trims a query and its trailing semicolon. Queries holding more
// than one statement are rejected.
func cleanQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	if strings.Contains(query, ";") {
		return "", fmt.Errorf("query must be a single statement")
	}
	return query, nil
}

func (d GridDef) usesDatabase() bool {
	return d.Table != "" || d.Query != "" || (d.SubGrid != nil && d.SubGrid.Table != "")
}

func parseAlign(s string) (grid.Align, error) {
	switch strings.ToLower(s) {
	case "", "left":
		return grid.AlignLeft, nil
	case "center":
		return grid.AlignCenter, nil
	case "right":
		return grid.AlignRight, nil
	}
	return 0, fmt.Errorf("unknown align %q", s)
}

func parseSortType(s string) (grid.SortType, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return grid.SortText, nil
	case "int", "integer":
		return grid.SortInt, nil
	case "float", "number":
		return grid.SortFloat, nil
	case "currency":
		return grid.SortCurrency, nil
	case "date":
		return grid.SortDate, nil
	}
	return 0, fmt.Errorf("unknown sort type %q", s)
}

func (c ColumnDef) column() (grid.Column, error) {
	col := grid.Column{
		Name:       c.Name,
		Label:      c.Label,
		Index:      c.Index,
		Width:      c.Width,
		Sortable:   c.Sortable == nil || *c.Sortable,
		Editable:   c.Editable,
		Hidden:     c.Hidden,
		Fixed:      c.Fixed,
		Searchable: c.Searchable == nil || *c.Searchable,
		Key:        c.Key,
		EditRules: grid.EditRules{
			Required:   c.Rules.Required,
			Number:     c.Rules.Number,
			Integer:    c.Rules.Integer,
			MinValue:   c.Rules.Min,
			MaxValue:   c.Rules.Max,
			Email:      c.Rules.Email,
			URL:        c.Rules.URL,
			Date:       c.Rules.Date,
			Time:       c.Rules.Time,
			DateFormat: c.Rules.DateFormat,
		},
		FormatOptions: grid.FormatOptions{
			DecimalSeparator:   c.Format.DecimalSeparator,
			ThousandsSeparator: c.Format.ThousandsSeparator,
			DecimalPlaces:      c.Format.DecimalPlaces,
			Prefix:             c.Format.Prefix,
			Suffix:             c.Format.Suffix,
			DefaultValue:       c.Format.Default,
			SrcFormat:          c.Format.SrcFormat,
			NewFormat:          c.Format.NewFormat,
			BaseLinkURL:        c.Format.BaseLinkURL,
			ShowAction:         c.Format.ShowAction,
			AddParam:           c.Format.AddParam,
			IDName:             c.Format.IDName,
			Target:             c.Format.Target,
			Multiple:           c.Multiple,
			Separator:          c.Format.Separator,
		},
	}
	if c.Name == "" {
		return col, fmt.Errorf("column without a name")
	}
	var err error
	if col.Align, err = parseAlign(c.Align); err != nil {
		return col, fmt.Errorf("column %s: %w", c.Name, err)
	}
	if col.SortType, err = parseSortType(c.SortType); err != nil {
		return col, fmt.Errorf("column %s: %w", c.Name, err)
	}
	if c.EditType != "" {
		if col.EditType, err = grid.ParseEditType(c.EditType); err != nil {
			return col, fmt.Errorf("column %s: %w", c.Name, err)
		}
	}
	if c.Formatter != "" {
		kind, ok := grid.ParseFormatter(c.Formatter)
		if !ok {
			return col, fmt.Errorf("column %s: unknown formatter %q", c.Name, c.Formatter)
		}
		col.Formatter = kind
	}

	opts := grid.ParseOptions(c.Options)
	col.EditOptions = grid.EditOptions{Value: opts, DefaultValue: c.Default, Multiple: c.Multiple}
	col.FormatOptions.Value = opts
	if c.Checkbox != "" {
		on, off, _ := strings.Cut(c.Checkbox, ":")
		col.EditOptions.CheckboxOn, col.EditOptions.CheckboxOff = on, off
	}
	return col, nil
}

func columns(defs []ColumnDef) ([]grid.Column, error) {
	out := make([]grid.Column, 0, len(defs))
	for _, d := range defs {
		col, err := d.column()
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

var titleCaser = cases.Title(language.English)

// columnLabel turns a column name like first_name into "First Name".
func columnLabel(name string) string {
	return titleCaser.String(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}

// defaultColumns derives a column model from a relation's schema. Key and
// generated columns are read-only.
func defaultColumns(rel *dblib.Relation) []grid.Column {
	cols := make([]grid.Column, 0, len(rel.Columns))
	for _, c := range rel.Columns {
		col := grid.Column{
			Name:       c.Name,
			Label:      columnLabel(c.Name),
			Sortable:   true,
			Searchable: true,
			Editable:   !c.Generated && !rel.IsCustomSQL,
			Key:        slices.Contains(rel.Key, c.Name),
		}
		if col.Key {
			col.Editable = false
		}
		switch typ := strings.ToLower(c.Type); {
		case strings.Contains(typ, "int"):
			col.Formatter, col.SortType, col.Align = grid.FormatInteger, grid.SortInt, grid.AlignRight
			col.EditRules.Integer = true
		case strings.Contains(typ, "real"), strings.Contains(typ, "float"), strings.Contains(typ, "double"),
			strings.Contains(typ, "numeric"), strings.Contains(typ, "decimal"):
			col.Formatter, col.SortType, col.Align = grid.FormatNumber, grid.SortFloat, grid.AlignRight
			col.EditRules.Number = true
		case strings.Contains(typ, "bool"):
			col.Formatter, col.EditType = grid.FormatCheckbox, grid.EditCheckbox
			col.EditOptions.CheckboxOn, col.EditOptions.CheckboxOff = "1", "0"
		case typ == "date":
			col.Formatter, col.SortType = grid.FormatDate, grid.SortDate
			col.EditRules.Date = true
		}
		if !c.Nullable && !c.Generated && !col.Key {
			col.EditRules.Required = true
		}
		cols = append(cols, col)
	}
	return cols
}

func (l *LocaleDef) locale() grid.Locale {
	loc := grid.DefaultLocale()
	if l == nil {
		return loc
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&loc.DecimalSeparator, l.DecimalSeparator)
	set(&loc.ThousandsSeparator, l.ThousandsSeparator)
	set(&loc.CurrencyPrefix, l.CurrencyPrefix)
	set(&loc.CurrencySuffix, l.CurrencySuffix)
	set(&loc.SrcDateFormat, l.SrcDateFormat)
	set(&loc.NewDateFormat, l.NewDateFormat)
	if l.DecimalPlaces != nil {
		loc.DecimalPlaces = *l.DecimalPlaces
	}
	return loc
}

// config maps the definition onto a grid configuration. model is used when
// the definition lists no columns.
func (d GridDef) config(model []grid.Column, loc grid.Locale, prefs *Settings) (grid.Config, error) {
	cols := slices.Clone(model)
	if len(d.Show) > 0 {
		for i := range cols {
			if !slices.Contains(d.Show, cols[i].Name) {
				cols[i].Hidden = true
			}
		}
	}
	if len(d.Columns) > 0 {
		var err error
		if cols, err = columns(d.Columns); err != nil {
			return grid.Config{}, err
		}
	}
	mode, err := grid.ParseEditMode(d.EditMode)
	if err != nil {
		return grid.Config{}, err
	}
	cfg := grid.Config{
		Columns:                  cols,
		RowsPerPage:              d.RowsPerPage,
		SortName:                 d.SortName,
		SortOrder:                grid.ParseSortOrder(d.SortOrder),
		LoadOnce:                 d.LoadOnce,
		Scroll:                   d.Scroll,
		MultiSelect:              d.MultiSelect,
		ExtraParams:              d.Params,
		Locale:                   loc,
		EditMode:                 mode,
		AllowMultipleInlineEdits: d.MultipleEdits,
		CheckOnNavigate:          d.CheckOnNavigate,
		AltRows:                  true,
	}
	if prefs != nil {
		if cfg.RowsPerPage == 0 {
			cfg.RowsPerPage = prefs.RowsPerPage
		}
		cfg.AltRows = prefs.AltRows
	}
	if d.AltRows != nil {
		cfg.AltRows = *d.AltRows
	}
	if cfg.RowsPerPage == 0 {
		cfg.RowsPerPage = 20
	}
	return cfg, nil
}

// session is one opened grid with everything needed to drive or serve it.
type session struct {
	name    string
	def     GridDef
	grid    *grid.Grid
	tree    *grid.Tree
	sub     *grid.SubGrid
	dbType  dblib.DatabaseType
	rel     *dblib.Relation
	src     grid.Source
	persist grid.Persister
}

// columnNames lists the model's column names in order.
func (s *session) columnNames() []string {
	cols := s.grid.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func httpSource(u, editURL, format, method string) (*source.HTTP, error) {
	f := source.FormatJSON
	if format != "" {
		var err error
		if f, err = source.ParseFormat(format); err != nil {
			return nil, err
		}
	}
	h := source.NewHTTP(u, f)
	h.EditURL = editURL
	if method != "" {
		h.Method = strings.ToUpper(method)
		if h.Method != http.MethodGet && h.Method != http.MethodPost {
			return nil, fmt.Errorf("unsupported method %q", method)
		}
	}
	return h, nil
}

func treeModel(s string) (grid.TreeModel, error) {
	switch strings.ToLower(s) {
	case "", "nested", "nested_set":
		return grid.NestedSet, nil
	case "adjacency":
		return grid.Adjacency, nil
	}
	return 0, fmt.Errorf("unknown tree model %q", s)
}

// openSession builds the source, grid and extensions of def. db may be nil
// for grids that do not read from a database.
func openSession(ctx context.Context, name string, def GridDef, db *sql.DB, dbType dblib.DatabaseType, loc grid.Locale, prefs *Settings, hooks grid.Hooks) (*session, error) {
	s := &session{name: name, def: def, dbType: dbType}
	if def.usesDatabase() && db == nil {
		return nil, fmt.Errorf("grid %s needs a database connection", name)
	}

	var model []grid.Column
	var sqlSrc *source.SQL
	switch {
	case def.Table != "":
		rel, err := dblib.NewRelation(ctx, db, dbType, def.Table)
		if err != nil {
			return nil, err
		}
		s.rel, model = rel, defaultColumns(rel)
		sqlSrc = source.NewSQL(rel)
		s.src, s.persist = sqlSrc, sqlSrc
	case def.Query != "":
		query, err := cleanQuery(def.Query)
		if err != nil {
			return nil, err
		}
		rel, err := dblib.NewQueryRelation(ctx, db, dbType, name, query)
		if err != nil {
			return nil, err
		}
		s.rel, model = rel, defaultColumns(rel)
		sqlSrc = source.NewSQL(rel)
		s.src = sqlSrc
	case def.URL != "":
		h, err := httpSource(def.URL, def.EditURL, def.Format, def.Method)
		if err != nil {
			return nil, err
		}
		s.src, s.persist = h, h
	default:
		s.src = source.NewLocal(def.Data)
	}
	if sqlSrc != nil {
		sqlSrc.Bind = def.Bind
	}

	cfg, err := def.config(model, loc, prefs)
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", name, err)
	}

	opts := []grid.GridOption{grid.WithHooks(hooks)}
	if s.persist != nil {
		opts = append(opts, grid.WithPersister(s.persist))
	}
	if def.Tree != nil {
		if s.tree, err = def.Tree.build(sqlSrc); err != nil {
			return nil, fmt.Errorf("grid %s: %w", name, err)
		}
		opts = append(opts, grid.WithExtensions(s.tree))
	}
	if def.SubGrid != nil {
		if s.sub, err = def.SubGrid.build(ctx, db, dbType); err != nil {
			return nil, fmt.Errorf("grid %s: %w", name, err)
		}
		opts = append(opts, grid.WithExtensions(s.sub))
	}

	if s.grid, err = grid.New(cfg, s.src, opts...); err != nil {
		return nil, fmt.Errorf("grid %s: %w", name, err)
	}
	return s, nil
}

func (t *TreeDef) build(sqlSrc *source.SQL) (*grid.Tree, error) {
	model, err := treeModel(t.Model)
	if err != nil {
		return nil, err
	}
	tree := grid.NewTree(model, t.ExpandColumn)
	tree.RootLevel = t.RootLevel
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&tree.Reader.Level, t.Level)
	set(&tree.Reader.Left, t.Left)
	set(&tree.Reader.Right, t.Right)
	set(&tree.Reader.Parent, t.Parent)
	set(&tree.Reader.Leaf, t.Leaf)

	if sqlSrc != nil {
		sqlSrc.Tree = &source.TreeColumns{
			Model:     model,
			Level:     tree.Reader.Level,
			Left:      tree.Reader.Left,
			Right:     tree.Reader.Right,
			Parent:    tree.Reader.Parent,
			RootLevel: t.RootLevel,
		}
		if model == grid.Adjacency {
			sqlSrc.Tree.Level, sqlSrc.Tree.Left, sqlSrc.Tree.Right = "", "", ""
		} else {
			sqlSrc.Tree.Parent = ""
		}
	}
	return tree, nil
}

func (d *SubGridDef) build(ctx context.Context, db *sql.DB, dbType dblib.DatabaseType) (*grid.SubGrid, error) {
	param := d.Param
	if param == "" {
		param = "id"
	}
	var (
		src   grid.Source
		model []grid.Column
	)
	switch {
	case d.Table != "":
		if d.Column == "" {
			return nil, fmt.Errorf("subgrid on table %s needs a column", d.Table)
		}
		rel, err := dblib.NewRelation(ctx, db, dbType, d.Table)
		if err != nil {
			return nil, err
		}
		sqlSrc := source.NewSQL(rel)
		sqlSrc.Bind = map[string]string{param: d.Column}
		src, model = sqlSrc, defaultColumns(rel)
	case d.URL != "":
		h, err := httpSource(d.URL, "", d.Format, "")
		if err != nil {
			return nil, err
		}
		src = h
	default:
		return nil, fmt.Errorf("subgrid needs a table or url")
	}
	if len(d.Columns) > 0 {
		var err error
		if model, err = columns(d.Columns); err != nil {
			return nil, err
		}
	}
	sub := grid.NewSubGrid(src, model)
	sub.Param = param
	return sub, nil
}
