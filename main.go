package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tedgrid/internal/dblib"
	"tedgrid/internal/grid"
	"tedgrid/internal/server"
)

func main() {
	err := rootCmd.Execute()
	FlushAndShutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const defaultGridFile = "tedgrid.yaml"

var rootCmd = &cobra.Command{
	Use:   "tedgrid",
	Short: "tedgrid pages, sorts and edits tables as grids",
	Long: `tedgrid shows database tables, custom queries and remote grid endpoints
as pageable, sortable, editable grids in the terminal, and serves database
grids over HTTP.

Grids are described in a yaml file (tedgrid.yaml by default) or ad hoc
with flags.

Examples:
  tedgrid view -d app.db users
  tedgrid view -d app.db users.id,name
  tedgrid view -f grids.yaml orders
  tedgrid view --url http://localhost:8080/grids/users
  tedgrid serve -f grids.yaml --addr :8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if settings, err = LoadSettings(); err != nil {
			return err
		}
		initTelemetry(settings)
		return nil
	},
}

var (
	settings     *Settings
	gridFilePath string
	conn         Config

	adhoc   GridDef
	addr    string
	vimMode bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolP("help", "", false, "help for tedgrid")
	pf.StringVarP(&gridFilePath, "file", "f", "", "grid definition file (default ./"+defaultGridFile+" when present)")
	pf.StringVarP(&conn.Database, "database", "d", "", "Database name or sqlite file")
	pf.StringVarP(&conn.Host, "host", "h", "", "Database host")
	pf.StringVarP(&conn.Port, "port", "p", "", "Database port")
	pf.StringVarP(&conn.Username, "username", "U", "", "Database username")
	pf.StringVarP(&conn.Password, "password", "W", "", "Database password")
	pf.StringVar(&conn.Driver, "driver", "", "Database driver: sqlite3, postgres or mysql")

	for _, c := range []*cobra.Command{viewCmd, serveCmd} {
		f := c.Flags()
		f.StringVarP(&adhoc.Table, "table", "t", "", "table to show")
		f.StringVarP(&adhoc.Query, "command", "c", "", "SELECT to show read-only")
		f.StringVar(&adhoc.URL, "url", "", "remote grid endpoint")
		f.StringVar(&adhoc.Format, "format", "json", "remote payload format: json or xml")
		f.IntVarP(&adhoc.RowsPerPage, "rows", "r", 0, "rows per page")
		f.StringVar(&adhoc.SortName, "sort", "", "initial sort column")
		f.StringVar(&adhoc.EditMode, "edit-mode", "", "inline, cell or form")
	}
	viewCmd.Flags().BoolVar(&vimMode, "vim", false, "hjkl movement")
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	rootCmd.AddCommand(viewCmd, serveCmd, tablesCmd, telemetryCmd)
}

// gridFile loads the grid file named by --file, or the default one when it
// exists. It returns an empty file when neither is present.
func gridFile() (*GridFile, error) {
	path := gridFilePath
	if path == "" {
		if _, err := os.Stat(defaultGridFile); err != nil {
			return &GridFile{}, nil
		}
		path = defaultGridFile
	}
	return loadGridFile(path)
}

func (d GridDef) isEmpty() bool {
	return d.Table == "" && d.Query == "" && d.URL == ""
}

// resolveGrid picks the grid to open: a named grid of the file, an ad hoc
// grid from flags, a table named by the argument, or the file's only grid.
func resolveGrid(file *GridFile, args []string) (string, GridDef, error) {
	if !adhoc.isEmpty() {
		def := adhoc
		if def.URL == "" {
			def.Format = ""
		}
		return "adhoc", def, def.check()
	}
	if len(args) > 0 {
		if def, ok := file.Grids[args[0]]; ok {
			return args[0], def, nil
		}
		table, cols, _ := strings.Cut(args[0], ".")
		def := GridDef{Table: table}
		if cols != "" {
			def.Show = strings.Split(cols, ",")
		}
		return table, def, nil
	}
	if len(file.Grids) == 1 {
		for name, def := range file.Grids {
			return name, def, nil
		}
	}
	return "", GridDef{}, fmt.Errorf("name a grid or a table, or use --table, --command or --url")
}

func openDatabase(ctx context.Context, file *GridFile) (*sql.DB, dblib.DatabaseType, error) {
	c := conn.merge(file.Connection)
	return c.connect(ctx)
}

func sessionHooks(name string) grid.Hooks {
	return grid.Hooks{
		OnLoadComplete: func(rs *grid.RowSet) {
			recordFetch(name, rs.Page, len(rs.Rows), "")
		},
		OnLoadError: CaptureError,
		OnSubmitError: func(op grid.Operation, err error) {
			recordEdit(name, "failed "+op.Kind.String(), op.ID)
			CaptureError(err)
		},
	}
}

var viewCmd = &cobra.Command{
	Use:   "view [grid | table[.col,col]]",
	Short: "Browse and edit a grid in the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runView,
}

func runView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	file, err := gridFile()
	if err != nil {
		return err
	}
	name, def, err := resolveGrid(file, args)
	if err != nil {
		return err
	}

	var db *sql.DB
	var dbType dblib.DatabaseType
	if def.usesDatabase() {
		if db, dbType, err = openDatabase(ctx, file); err != nil {
			return err
		}
		defer db.Close()
	}
	s, err := openSession(ctx, name, def, db, dbType, file.Locale.locale(), settings, sessionHooks(name))
	if err != nil {
		return err
	}

	vim := vimMode || (settings != nil && settings.VimMode)
	p := tea.NewProgram(NewModel(ctx, s, vim), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve [grid...]",
	Short: "Serve database grids over HTTP",
	Long: `Serve mounts every database grid of the grid file (or the ad hoc grid
given by flags) at /grids/<name>. Fetches use page, rows, sidx, sord and the
search parameters; posts carrying oper=add|edit|del persist edits.`,
	RunE: runServe,
}

// mountGrids opens every database grid and registers its handler on mux.
func mountGrids(ctx context.Context, mux *http.ServeMux, file *GridFile, names []string, db *sql.DB, dbType dblib.DatabaseType) ([]string, error) {
	var mounted []string
	for _, name := range names {
		def, ok := file.Grids[name]
		if !ok {
			return nil, fmt.Errorf("no grid named %s", name)
		}
		if def.Table == "" && def.Query == "" {
			debugLog("serve: skipping %s, not a database grid\n", name)
			continue
		}
		s, err := openSession(ctx, name, def, db, dbType, file.Locale.locale(), settings, grid.Hooks{})
		if err != nil {
			return nil, err
		}
		opts := []server.Option{
			server.WithErrorHandler(func(r *http.Request, err error) { CaptureError(err) }),
		}
		if s.persist != nil {
			opts = append(opts, server.WithPersister(s.persist))
		}
		mux.Handle("/grids/"+name, server.New(s.src, s.columnNames(), opts...))
		mounted = append(mounted, name)
	}
	return mounted, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := gridFile()
	if err != nil {
		return err
	}
	if !adhoc.isEmpty() {
		name, def, err := resolveGrid(file, nil)
		if err != nil {
			return err
		}
		file.Grids = map[string]GridDef{name: def}
	}
	names := args
	if len(names) == 0 {
		for name := range file.Grids {
			names = append(names, name)
		}
		slices.Sort(names)
	}

	db, dbType, err := openDatabase(ctx, file)
	if err != nil {
		return err
	}
	defer db.Close()

	mux := http.NewServeMux()
	mounted, err := mountGrids(ctx, mux, file, names, db, dbType)
	if err != nil {
		return err
	}
	if len(mounted) == 0 {
		return errors.New("no database grids to serve")
	}

	var handler http.Handler = mux
	if sentryEnabled {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(mux)
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	for _, name := range mounted {
		fmt.Fprintf(cmd.OutOrStdout(), "serving %s at %s/grids/%s\n", name, addr, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := gridFile()
		if err != nil {
			return err
		}
		db, dbType, err := openDatabase(cmd.Context(), file)
		if err != nil {
			return err
		}
		defer db.Close()
		tables, err := listTables(cmd.Context(), db, dbType, conn.merge(file.Connection).Database)
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var telemetryCmd = &cobra.Command{
	Use:       "telemetry [on|off]",
	Short:     "Show or change error reporting",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			settings.TelemetryEnabled = args[0] == "on"
			settings.FirstRunComplete = true
			if err := SaveSettings(settings); err != nil {
				return err
			}
		}
		state := "off"
		if settings.TelemetryEnabled {
			state = "on"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "telemetry is %s\n", state)
		if settings.TelemetryEnabled && os.Getenv(sentryDSNEnv) == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "set %s to report errors\n", sentryDSNEnv)
		}
		return nil
	},
}
