package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/parachute/internal/geo"
	"github.com/OCAP2/parachute/pkg/core"
)

// FlightsExport is the root JSON structure of an export file
type FlightsExport struct {
	SessionID  uint           `json:"sessionId"`
	MapName    string         `json:"mapName"`
	StartedAt  time.Time      `json:"startedAt"`
	ExportedAt time.Time      `json:"exportedAt"`
	Summary    Summary        `json:"summary"`
	Flights    []FlightExport `json:"flights"`
}

// Summary aggregates the flights of one export
type Summary struct {
	Flights       int                `json:"flights"`
	TotalAirtime  time.Duration      `json:"totalAirtime"`
	LongestFlight string             `json:"longestFlight,omitempty"`
	MaxSpeed      float64            `json:"maxSpeed"`
	ByMountType   map[string]int     `json:"byMountType"`
	ByReason      map[string]int     `json:"byReason"`
	Distance      map[string]float64 `json:"distanceByMountType"`
}

// FlightExport is one flight with its path as WKT
type FlightExport struct {
	core.FlightSession
	PathWKT string `json:"pathWkt,omitempty"`
}

func (b *Backend) buildExport() FlightsExport {
	export := FlightsExport{
		SessionID:  b.session.ID,
		MapName:    b.session.MapName,
		StartedAt:  b.session.StartedAt,
		ExportedAt: time.Now(),
		Summary: Summary{
			ByMountType: make(map[string]int),
			ByReason:    make(map[string]int),
			Distance:    make(map[string]float64),
		},
		Flights: make([]FlightExport, 0, len(b.flights)),
	}

	var longest time.Duration
	for _, f := range b.flights {
		fe := FlightExport{FlightSession: f}
		if len(f.Path) >= 2 {
			fe.PathWKT = geo.PathWKT(f.Path)
		}
		export.Flights = append(export.Flights, fe)

		s := &export.Summary
		s.Flights++
		s.TotalAirtime += f.Airtime
		if f.Airtime > longest {
			longest = f.Airtime
			s.LongestFlight = f.ID
		}
		if f.MaxSpeed > s.MaxSpeed {
			s.MaxSpeed = f.MaxSpeed
		}
		s.ByMountType[f.MountType]++
		s.ByReason[string(f.Reason)]++
		s.Distance[f.MountType] += f.Distance
	}
	return export
}

// exportFileName builds "<map>_<start>.json[.gz]" with path-hostile
// characters replaced.
func exportFileName(mapName string, start time.Time, compress bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '/', '\\':
			return '_'
		}
		return r
	}, mapName)
	if name == "" {
		name = "unknown"
	}
	filename := fmt.Sprintf("%s_%s.json", name, start.Format("20060102_150405"))
	if compress {
		filename += ".gz"
	}
	return filename
}

// exportJSON writes the open session to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	outputPath := filepath.Join(b.cfg.OutputDir, exportFileName(b.session.MapName, b.session.StartedAt, b.cfg.CompressOutput))

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		MapName:   export.MapName,
		SessionID: export.SessionID,
		Flights:   export.Summary.Flights,
		Airtime:   export.Summary.TotalAirtime,
		Duration:  export.ExportedAt.Sub(export.StartedAt),
	}
	return nil
}

func writeJSON(path string, data FlightsExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data FlightsExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
