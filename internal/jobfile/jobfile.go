// Package jobfile loads batch job definitions for `soil batch`.
package jobfile

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// File is the top-level batch file.
type File struct {
	Defaults Defaults `yaml:"defaults"`
	Jobs     []Job    `yaml:"jobs"`
}

// Defaults fill job settings that are left blank. Settings still blank
// after defaults fall back to the application config.
type Defaults struct {
	Resolution float64 `yaml:"resolution"`
	Workers    int     `yaml:"workers"`
	Format     string  `yaml:"format"`
	CRS        string  `yaml:"crs"`
}

// Job is one area of interest to divide, enrich, and export.
type Job struct {
	Name       string    `yaml:"name"`
	BBox       []float64 `yaml:"bbox"` // lon1, lat1, lon2, lat2
	Resolution float64   `yaml:"resolution"`
	Workers    int       `yaml:"workers"`
	Format     string    `yaml:"format"`
	CRS        string    `yaml:"crs"`
	Output     string    `yaml:"output"` // file path, or table name for postgis
}

// Extent returns the job's bounding box.
func (j Job) Extent() grid.BBox {
	return grid.BBox{Lon1: j.BBox[0], Lat1: j.BBox[1], Lon2: j.BBox[2], Lat2: j.BBox[3]}
}

// Load reads and validates a batch file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "jobfile: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a batch file, applies defaults, and validates every job.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "jobfile: parse")
	}
	if len(f.Jobs) == 0 {
		return nil, eris.New("jobfile: no jobs defined")
	}

	var errs []string
	seen := make(map[string]bool, len(f.Jobs))
	for i := range f.Jobs {
		j := &f.Jobs[i]
		if j.Resolution == 0 {
			j.Resolution = f.Defaults.Resolution
		}
		if j.Workers == 0 {
			j.Workers = f.Defaults.Workers
		}
		if j.Format == "" {
			j.Format = f.Defaults.Format
		}
		if j.CRS == "" {
			j.CRS = f.Defaults.CRS
		}

		label := j.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			errs = append(errs, fmt.Sprintf("job %s: name is required", label))
		} else if seen[j.Name] {
			errs = append(errs, fmt.Sprintf("job %s: duplicate name", label))
		}
		seen[j.Name] = true

		if len(j.BBox) != 4 {
			errs = append(errs, fmt.Sprintf("job %s: bbox must have 4 values (lon1, lat1, lon2, lat2)", label))
		}
		if j.Resolution < 0 || math.IsNaN(j.Resolution) {
			errs = append(errs, fmt.Sprintf("job %s: resolution must be > 0", label))
		}
		if j.Workers < 0 {
			errs = append(errs, fmt.Sprintf("job %s: workers must be >= 0", label))
		}
		if j.Output == "" {
			errs = append(errs, fmt.Sprintf("job %s: output is required", label))
		}
	}

	if len(errs) > 0 {
		return nil, eris.Errorf("jobfile: %s", strings.Join(errs, "; "))
	}
	return &f, nil
}
