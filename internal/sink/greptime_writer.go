package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"roverscope/internal/telemetry"
)

// DefaultGreptimePort is the GreptimeDB gRPC port.
const DefaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

type column struct {
	name string
	typ  types.ColumnType
	tag  bool
}

var poseColumns = []column{
	{"session_id", types.STRING, true},
	{"step", types.INT64, false},
	{"x", types.FLOAT64, false},
	{"y", types.FLOAT64, false},
	{"heading", types.FLOAT64, false},
	{"throttle", types.FLOAT64, false},
	{"steering", types.FLOAT64, false},
}

var hazardColumns = []column{
	{"session_id", types.STRING, true},
	{"hazard_id", types.STRING, true},
	{"label", types.STRING, false},
	{"x", types.FLOAT64, false},
	{"y", types.FLOAT64, false},
	{"radius", types.FLOAT64, false},
	{"depth", types.FLOAT64, false},
	{"distance", types.FLOAT64, false},
	{"tier", types.STRING, false},
}

// GreptimeDBWriter writes pose and hazard rows to GreptimeDB. Tables are
// created by the server on first write.
type GreptimeDBWriter struct {
	client      greptimeClient
	poseTable   string
	hazardTable string
	timeout     time.Duration
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port"). Empty
// table names fall back to telemetry.PoseTableName and
// telemetry.HazardTableName.
func NewGreptimeDBWriter(endpoint, database, poseTable, hazardTable string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if poseTable == "" {
		poseTable = telemetry.PoseTableName
	}
	if hazardTable == "" {
		hazardTable = telemetry.HazardTableName
	}
	return &GreptimeDBWriter{
		client:      client,
		poseTable:   poseTable,
		hazardTable: hazardTable,
		timeout:     5 * time.Second,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: bad port", endpoint)
	}
	return host, port, nil
}

// WritePose inserts a single pose row.
func (w *GreptimeDBWriter) WritePose(row telemetry.PoseRow) error {
	return w.WritePoses([]telemetry.PoseRow{row})
}

// WritePoses inserts multiple pose rows.
func (w *GreptimeDBWriter) WritePoses(rows []telemetry.PoseRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.poseTable, poseColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.SessionID, r.Step, r.X, r.Y, r.Heading, r.Throttle, r.Steering, r.Timestamp); err != nil {
			return fmt.Errorf("pose row: %w", err)
		}
	}
	return w.write(tbl)
}

// WriteHazard inserts a single hazard row.
func (w *GreptimeDBWriter) WriteHazard(row telemetry.HazardRow) error {
	return w.WriteHazards([]telemetry.HazardRow{row})
}

// WriteHazards inserts multiple hazard rows.
func (w *GreptimeDBWriter) WriteHazards(rows []telemetry.HazardRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.hazardTable, hazardColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.SessionID, r.HazardID, r.Label, r.X, r.Y, r.Radius, r.Depth, r.Distance, r.Tier, r.Timestamp); err != nil {
			return fmt.Errorf("hazard row: %w", err)
		}
	}
	return w.write(tbl)
}

func (w *GreptimeDBWriter) write(tbl *table.Table) error {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}

// newTable declares cols followed by the "ts" time index.
func newTable(name string, cols []column) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", name, c.name, err)
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, fmt.Errorf("table %s time index: %w", name, err)
	}
	return tbl, nil
}
